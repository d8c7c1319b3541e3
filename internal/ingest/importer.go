// Package ingest bulk-imports coupon definitions from CSV files.
//
// Codes must be unique across the whole import. A code that appears twice,
// in one file or across files, is ambiguous; every copy is skipped and
// reported. Files are streamed three times so memory stays proportional to
// the number of suspected duplicates rather than the number of codes: bloom
// filters first collect every file's codes, a second pass confirms the
// filter hits exactly, and the third pass writes the clean rows.
package ingest

import (
	"context"
	"math/bits"
	"slices"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/electro-checkout/internal/domain/coupon"
)

const maxFiles = 64

// Sink stores imported coupons.
type Sink interface {
	Upsert(ctx context.Context, c *coupon.Coupon) (string, error)
}

// Options tunes an Importer. Zero values select defaults.
type Options struct {
	// ExpectedCodes sizes each file's bloom filter.
	ExpectedCodes uint
	// FalsePositiveRate of each bloom filter.
	FalsePositiveRate float64
	// Writers is the number of concurrent Sink calls.
	Writers int
}

func (o Options) withDefaults() Options {
	if o.ExpectedCodes == 0 {
		o.ExpectedCodes = 1_000_000
	}
	if o.FalsePositiveRate <= 0 {
		o.FalsePositiveRate = 0.001
	}
	if o.Writers <= 0 {
		o.Writers = 4
	}
	return o
}

// Report summarises an import.
type Report struct {
	Files    int
	Rows     int
	Imported int
	Invalid  []*RowError
	// Duplicates lists the skipped ambiguous codes, sorted.
	Duplicates []string
}

// Importer runs coupon imports into a Sink.
type Importer struct {
	sink Sink
	lg   *zap.Logger
	opts Options
}

// NewImporter creates an Importer.
func NewImporter(sink Sink, lg *zap.Logger, opts Options) *Importer {
	return &Importer{sink: sink, lg: lg, opts: opts.withDefaults()}
}

type fileIndex struct {
	filter  *bloom.BloomFilter
	repeats map[string]struct{} // codes the filter had already seen in this file
	rows    int
	invalid []*RowError
}

type fileHits struct {
	cross  map[string]struct{} // codes that hit another file's filter
	counts map[string]int      // exact occurrences of repeat suspects
}

// Run imports files and returns what was written and what was skipped.
// Invalid rows and duplicates do not fail the run.
func (im *Importer) Run(ctx context.Context, files []string) (*Report, error) {
	switch {
	case len(files) == 0:
		return nil, errors.New("no input files")
	case len(files) > maxFiles:
		return nil, errors.Errorf("at most %d files per import, got %d", maxFiles, len(files))
	}

	indexes, err := im.index(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "index files")
	}
	im.lg.Info("Indexed files", zap.Int("files", len(files)))

	dupes, err := im.confirmDuplicates(ctx, files, indexes)
	if err != nil {
		return nil, errors.Wrap(err, "confirm duplicates")
	}
	if len(dupes) > 0 {
		im.lg.Warn("Skipping duplicate codes", zap.Int("count", len(dupes)))
	}

	imported, err := im.write(ctx, files, dupes)
	if err != nil {
		return nil, errors.Wrap(err, "write coupons")
	}

	rep := &Report{Files: len(files), Imported: imported}
	for _, idx := range indexes {
		rep.Rows += idx.rows
		rep.Invalid = append(rep.Invalid, idx.invalid...)
	}
	for code := range dupes {
		rep.Duplicates = append(rep.Duplicates, code)
	}
	slices.Sort(rep.Duplicates)
	return rep, nil
}

// index builds a bloom filter of the valid codes of every file.
func (im *Importer) index(ctx context.Context, files []string) ([]*fileIndex, error) {
	indexes := make([]*fileIndex, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			idx := &fileIndex{
				filter:  bloom.NewWithEstimates(im.opts.ExpectedCodes, im.opts.FalsePositiveRate),
				repeats: make(map[string]struct{}),
			}
			err := scanFile(ctx, path, func(line int, c *coupon.Coupon, rowErr error) error {
				idx.rows++
				if rowErr != nil {
					idx.invalid = append(idx.invalid, &RowError{File: path, Line: line, Err: rowErr})
					return nil
				}
				if idx.filter.TestAndAddString(c.Code) {
					idx.repeats[c.Code] = struct{}{}
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, e := range idx.invalid {
				im.lg.Warn("Invalid row", zap.String("file", e.File), zap.Int("line", e.Line), zap.Error(e.Err))
			}
			indexes[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return indexes, nil
}

// confirmDuplicates rescans every file and resolves bloom hits exactly.
func (im *Importer) confirmDuplicates(ctx context.Context, files []string, indexes []*fileIndex) (map[string]struct{}, error) {
	hits := make([]fileHits, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			h := fileHits{cross: make(map[string]struct{}), counts: make(map[string]int)}
			err := scanFile(ctx, path, func(_ int, c *coupon.Coupon, rowErr error) error {
				if rowErr != nil {
					return nil
				}
				if _, ok := indexes[i].repeats[c.Code]; ok {
					h.counts[c.Code]++
				}
				for j, other := range indexes {
					if j != i && other.filter.TestString(c.Code) {
						h.cross[c.Code] = struct{}{}
						break
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			hits[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dupes := make(map[string]struct{})
	seenIn := make(map[string]uint64)
	for i, h := range hits {
		for code := range h.cross {
			seenIn[code] |= 1 << uint(i)
		}
		for code, n := range h.counts {
			if n > 1 {
				dupes[code] = struct{}{}
			}
		}
	}
	for code, mask := range seenIn {
		if bits.OnesCount64(mask) > 1 {
			dupes[code] = struct{}{}
		}
	}
	return dupes, nil
}

// write streams the valid, unambiguous rows into the sink.
func (im *Importer) write(ctx context.Context, files []string, dupes map[string]struct{}) (int, error) {
	var written atomic.Int64
	work := make(chan *coupon.Coupon)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(work)
		for _, path := range files {
			err := scanFile(ctx, path, func(_ int, c *coupon.Coupon, rowErr error) error {
				if rowErr != nil {
					return nil
				}
				if _, dup := dupes[c.Code]; dup {
					return nil
				}
				select {
				case work <- c:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	for range im.opts.Writers {
		g.Go(func() error {
			for c := range work {
				if _, err := im.sink.Upsert(ctx, c); err != nil {
					return errors.Wrapf(err, "upsert coupon %s", c.Code)
				}
				if n := written.Add(1); n%10_000 == 0 {
					im.lg.Info("Write progress", zap.Int64("written", n))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}
	return int(written.Load()), nil
}
