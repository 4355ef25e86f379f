package lookup

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/dwarfscope/pkg/dwarfimage"
)

// Acquirer hands out retained images by path. internal/imagecache.Cache
// implements it.
type Acquirer interface {
	Acquire(path string) (*dwarfimage.Image, error)
}

// OpenSources acquires every path concurrently. The returned release
// function drops the references; call it once the sources are no longer
// searched. On error nothing stays acquired.
func OpenSources(ctx context.Context, acq Acquirer, paths []string) ([]Source, func() error, error) {
	images := make([]*dwarfimage.Image, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := acq.Acquire(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			images[i] = img
			return nil
		})
	}

	release := func() error {
		var errs []error
		for _, img := range images {
			if img != nil {
				errs = append(errs, img.Release())
			}
		}
		return errors.Join(errs...)
	}

	if err := g.Wait(); err != nil {
		_ = release()
		return nil, nil, err
	}

	sources := make([]Source, len(images))
	for i, img := range images {
		sources[i] = Source{Name: img.Path(), Info: img}
	}
	return sources, release, nil
}

// IsLoadError reports whether err came from opening an image.
func IsLoadError(err error) bool {
	var le *dwarfimage.LoadError
	return errors.As(err, &le)
}
