// Automod component remembering classification results by perceptual hash, so
// that an artifact which was already rated is not sent to a classifier again.
//
// Images are fingerprinted as a set of 32x32 block-mean tile hashes. A stored
// entry matches a new image when more than Threshold percent of the new
// image's tiles are found in it, which tolerates artifacts that were moved,
// extended or partially redrawn.
//
// Includes an interface and implementations using in-process memory, a SQL
// database (through gorm) and redis.
package imagecache
