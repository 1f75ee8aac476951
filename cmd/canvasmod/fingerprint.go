package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/canvasmod/canvasmod/automod/imagecache"

	cli "github.com/urfave/cli/v2"
)

var fingerprintCmd = &cli.Command{
	Name:      "fingerprint",
	Usage:     "compute the dedup fingerprint of an image, or the overlap of two",
	ArgsUsage: "<image> [<cached-image>]",
	Action: func(cctx *cli.Context) error {
		args := cctx.Args()
		if args.Len() < 1 || args.Len() > 2 {
			return fmt.Errorf("expected one or two image paths")
		}

		candidate, err := fingerprintFile(args.Get(0))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d tiles\n", args.Get(0), len(candidate))
		if args.Len() == 1 {
			return nil
		}

		stored, err := fingerprintFile(args.Get(1))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d tiles\n", args.Get(1), len(stored))
		fmt.Printf("overlap: %.1f%%\n", imagecache.Overlap(candidate, stored))
		return nil
	},
}

func fingerprintFile(path string) (imagecache.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return imagecache.Compute(img), nil
}
