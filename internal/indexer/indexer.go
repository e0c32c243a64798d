// Package indexer builds the reference index from a dataset directory laid
// out as one subdirectory of images per identity.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Hofman2HQ/LookALike/internal/database"
	"github.com/Hofman2HQ/LookALike/internal/facematch"
	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
)

// ErrEmptyDataset is returned when the dataset yields no usable images.
var ErrEmptyDataset = errors.New("dataset contains no images")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ProgressFunc is called after every processed image.
type ProgressFunc func(done, total int, file string)

// Options configures a Builder.
type Options struct {
	PhotoBaseURL string // prefix for photo_url, e.g. /static
	Concurrency  int    // images embedded in parallel; ids stay in traversal order
	Progress     ProgressFunc
}

// Builder turns a dataset into reference entries.
type Builder struct {
	pre      *facematch.Preprocessor
	embedder fingerprint.Embedder
	opts     Options
}

// NewBuilder creates a builder around an already constructed pipeline.
func NewBuilder(pre *facematch.Preprocessor, embedder fingerprint.Embedder, opts Options) *Builder {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Builder{pre: pre, embedder: embedder, opts: opts}
}

// SkippedFile records an image left out of the index.
type SkippedFile struct {
	Path   string
	Reason string
}

// Result is the in-memory outcome of a build.
type Result struct {
	Dim        int
	Entries    []database.ReferenceEntry
	Identities int
	Skipped    []SkippedFile
}

type datasetImage struct {
	identity string // directory name
	name     string // display name
	file     string // file name within the directory
	path     string
}

// scan lists dataset images in traversal order: identity directories sorted
// by name, then image files sorted by name.
func scan(root string) ([]datasetImage, int, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read dataset root: %w", err)
	}

	var (
		images     []datasetImage
		identities int
		seen       = make(map[string]string)
	)
	for _, d := range dirs { // os.ReadDir sorts by name
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, d.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read identity directory %s: %w", d.Name(), err)
		}

		name := facematch.DisplayName(d.Name())
		count := 0
		for _, f := range files {
			if f.IsDir() || !IsImageFile(f.Name()) {
				continue
			}
			images = append(images, datasetImage{
				identity: d.Name(),
				name:     name,
				file:     f.Name(),
				path:     filepath.Join(dir, f.Name()),
			})
			count++
		}
		if count == 0 {
			continue
		}
		identities++

		key := facematch.NormalizePersonName(d.Name())
		if prev, ok := seen[key]; ok {
			slog.Warn("dataset directories normalize to the same identity", "first", prev, "second", d.Name())
		} else {
			seen[key] = d.Name()
		}
	}
	return images, identities, nil
}

// PhotoURL joins the base URL with the escaped dataset-relative path.
func PhotoURL(base, identity, file string) string {
	rel := path.Join(url.PathEscape(identity), url.PathEscape(file))
	return strings.TrimSuffix(base, "/") + "/" + rel
}

type embedded struct {
	vector []float32
	skip   string
}

// Build embeds every dataset image and assigns dense ids in traversal order.
// Undecodable images are skipped; embedding errors abort the build.
func (b *Builder) Build(ctx context.Context, root string) (*Result, error) {
	images, identities, err := scan(root)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, root)
	}

	slog.Info("building index", "root", root, "identities", identities, "images", len(images),
		"embedder", b.embedder.Name(), "detector", b.pre.DetectorName())

	out := make([]embedded, len(images))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		done     int
		firstErr error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, b.opts.Concurrency)
	for i, img := range images {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() == nil {
				vec, skip, err := b.embedFile(ctx, img.path)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = fmt.Errorf("failed to embed %s: %w", img.path, err)
					cancel()
				}
				mu.Unlock()
				out[i] = embedded{vector: vec, skip: skip}
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if b.opts.Progress != nil {
				b.opts.Progress(n, len(images), img.path)
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Dim: b.embedder.Dim(), Identities: identities}
	for i, img := range images {
		if out[i].skip != "" {
			slog.Warn("skipping image", "path", img.path, "reason", out[i].skip)
			res.Skipped = append(res.Skipped, SkippedFile{Path: img.path, Reason: out[i].skip})
			continue
		}
		res.Entries = append(res.Entries, database.ReferenceEntry{
			ID:        len(res.Entries),
			Embedding: fingerprint.NormalizeL2(out[i].vector),
			Name:      img.name,
			PhotoURL:  PhotoURL(b.opts.PhotoBaseURL, img.identity, img.file),
		})
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: all %d images were skipped", ErrEmptyDataset, len(images))
	}
	return res, nil
}

func (b *Builder) embedFile(ctx context.Context, path string) ([]float32, string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // dataset paths come from the operator
	if err != nil {
		return nil, err.Error(), nil
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err.Error(), nil
	}
	vec, err := b.embedder.Embed(ctx, b.pre.DetectAndAlign(ctx, img))
	if err != nil {
		return nil, "", err
	}
	return vec, "", nil
}

// Vectors returns the normalized embeddings in id order.
func (r *Result) Vectors() [][]float32 {
	out := make([][]float32, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Embedding
	}
	return out
}

// Metadata returns the id to metadata map.
func (r *Result) Metadata() database.Metadata {
	meta := make(database.Metadata, len(r.Entries))
	for _, e := range r.Entries {
		meta[e.ID] = database.ReferenceMeta{Name: e.Name, PhotoURL: e.PhotoURL}
	}
	return meta
}

// Save persists the flat index and metadata, plus the HNSW graph when withGraph is set.
func (r *Result) Save(indexPath, metaPath string, withGraph bool) error {
	if err := database.SaveFlatIndex(indexPath, r.Dim, r.Vectors()); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	if err := database.SaveMetadata(metaPath, r.Metadata()); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	if withGraph {
		if err := database.SaveHNSWGraph(indexPath, r.Dim, r.Vectors()); err != nil {
			return fmt.Errorf("failed to save HNSW graph: %w", err)
		}
	}
	return nil
}

// Export mirrors the entries into a reference store such as PostgreSQL.
func (r *Result) Export(ctx context.Context, w database.ReferenceWriter) error {
	if err := w.ReplaceAll(ctx, r.Entries); err != nil {
		return fmt.Errorf("failed to export references: %w", err)
	}
	return nil
}
