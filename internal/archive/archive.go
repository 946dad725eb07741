// Package archive zips the analysis scripts' output folders so they can be
// downloaded as a single file, and prunes old archives.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrUnknownFolder is returned for a folder that is not configured.
	ErrUnknownFolder = errors.New("unknown output folder")
	// ErrFolderMissing is returned when the output folder does not exist yet.
	ErrFolderMissing = errors.New("output folder does not exist")
)

// Archive describes a zip file produced from an output folder.
type Archive struct {
	Name      string    `json:"name"`
	Folder    string    `json:"folder"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	HumanSize string    `json:"formatted_size"`
	Files     int       `json:"files,omitempty"`
	CreatedAt time.Time `json:"created_time"`
}

// Archiver zips folders under OutputRoot into Dir.
type Archiver struct {
	OutputRoot string
	Dir        string
	Folders    []string // folders that may be archived

	now func() time.Time
}

// New returns an Archiver for the given folders.
func New(outputRoot, dir string, folders []string) *Archiver {
	return &Archiver{OutputRoot: outputRoot, Dir: dir, Folders: folders, now: time.Now}
}

// Compress zips <OutputRoot>/<folder> into <Dir>/<folder>.zip, replacing any
// previous archive. Entry names are relative to OutputRoot, so they start
// with the folder name.
func (a *Archiver) Compress(folder string) (*Archive, error) {
	if !slices.Contains(a.Folders, folder) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, folder)
	}

	src := filepath.Join(a.OutputRoot, folder)
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderMissing, src)
	}

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(a.Dir, folder+"-*.zip.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	files, err := a.writeZip(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("compressing %s: %w", folder, err)
	}

	dst := a.path(folder)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("writing archive %s: %w", dst, err)
	}

	arc, err := a.stat(folder)
	if err != nil {
		return nil, err
	}
	arc.Files = files
	return arc, nil
}

func (a *Archiver) writeZip(w io.Writer, src string) (int, error) {
	zw := zip.NewWriter(w)
	files := 0

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(a.OutputRoot, path)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		_ = f.Close()
		if err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return 0, err
	}
	return files, zw.Close()
}

// List returns the archives that currently exist, in folder order.
func (a *Archiver) List() ([]Archive, error) {
	var out []Archive
	for _, folder := range a.Folders {
		arc, err := a.stat(folder)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *arc)
	}
	return out, nil
}

// Lookup returns the archive with the given file name, e.g. "contents.zip".
func (a *Archiver) Lookup(name string) (*Archive, error) {
	for _, folder := range a.Folders {
		if folder+".zip" == name {
			return a.stat(folder)
		}
	}
	return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, name)
}

// Cleanup deletes archives older than olderThan and returns how many were
// removed.
func (a *Archiver) Cleanup(olderThan time.Duration) (int, error) {
	archives, err := a.List()
	if err != nil {
		return 0, err
	}

	cutoff := a.clock()().Add(-olderThan)
	deleted := 0
	for _, arc := range archives {
		if !arc.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(arc.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", arc.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

func (a *Archiver) stat(folder string) (*Archive, error) {
	path := a.path(folder)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Archive{
		Name:      folder + ".zip",
		Folder:    folder,
		Path:      path,
		Size:      info.Size(),
		HumanSize: humanize.IBytes(uint64(info.Size())),
		CreatedAt: info.ModTime(),
	}, nil
}

func (a *Archiver) path(folder string) string {
	return filepath.Join(a.Dir, folder+".zip")
}

func (a *Archiver) clock() func() time.Time {
	if a.now == nil {
		return time.Now
	}
	return a.now
}
