/*
Copyright © 2021 the AerPrep authors.
This file is part of AerPrep.

AerPrep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AerPrep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AerPrep.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/aerprep"
	"gocloud.dev/blob"
)

// Store opens files by address. An address is either a local file path or
// a blob address such as "gs://bucket/dir/file", "s3://bucket/file" or
// "file://dir/file". It implements aerprep.Store.
type Store struct{}

// NewReader opens the file at addr for reading.
func (Store) NewReader(ctx context.Context, addr string) (io.ReadCloser, error) {
	if !IsBlob(addr) {
		return os.Open(addr)
	}
	bucketName, key, err := splitBlob(addr)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("cloud: reading blob %s: %v", addr, err)
	}
	return &bucketCloser{ReadCloser: r, bucket: bucket}, nil
}

// NewWriter creates the file at addr. The file is not complete until the
// returned writer has been closed.
func (Store) NewWriter(ctx context.Context, addr string) (io.WriteCloser, error) {
	if !IsBlob(addr) {
		if err := os.MkdirAll(filepath.Dir(addr), os.ModePerm); err != nil {
			return nil, err
		}
		return os.Create(addr)
	}
	bucketName, key, err := splitBlob(addr)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("cloud: creating writer for blob %s: %v", addr, err)
	}
	return &bucketCloser{WriteCloser: w, bucket: bucket}, nil
}

// bucketCloser closes its bucket after its reader or writer.
type bucketCloser struct {
	io.ReadCloser
	io.WriteCloser
	bucket *blob.Bucket
}

func (b *bucketCloser) Read(p []byte) (int, error)  { return b.ReadCloser.Read(p) }
func (b *bucketCloser) Write(p []byte) (int, error) { return b.WriteCloser.Write(p) }

func (b *bucketCloser) Close() error {
	var err error
	if b.ReadCloser != nil {
		err = b.ReadCloser.Close()
	}
	if b.WriteCloser != nil {
		err = b.WriteCloser.Close()
	}
	if err2 := b.bucket.Close(); err == nil {
		err = err2
	}
	return err
}

// ReadFile returns the contents of the file at addr.
func ReadFile(ctx context.Context, addr string) ([]byte, error) {
	r, err := Store{}.NewReader(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var b bytes.Buffer
	if _, err = io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("cloud: reading %s: %v", addr, err)
	}
	return b.Bytes(), nil
}

// WriteFile writes data to the file at addr.
func WriteFile(ctx context.Context, addr string, data []byte) error {
	w, err := Store{}.NewWriter(ctx, addr)
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying %s: %v", addr, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing %s: %v", addr, err)
	}
	return nil
}

// Join joins a directory address and a file name.
func Join(dir, name string) string {
	if IsBlob(dir) {
		return strings.TrimRight(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// Creator returns an aerprep.FileCreator that creates files in the
// directory at address dir.
func Creator(ctx context.Context, dir string) aerprep.FileCreator {
	return func(name string) (io.WriteCloser, error) {
		return Store{}.NewWriter(ctx, Join(dir, name))
	}
}

// CopyShapefile copies the local shapefile at fileName, along with its
// .dbf, .shx and .prj files, to the directory at address dir.
func CopyShapefile(ctx context.Context, fileName, dir string) error {
	for _, f := range ExpandShp(fileName) {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("cloud: reading shapefile: %v", err)
		}
		if err := WriteFile(ctx, Join(dir, filepath.Base(f)), data); err != nil {
			return err
		}
	}
	return nil
}

// ExpandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise
func ExpandShp(filename string) []string {
	o := []string{filename}
	ext := filepath.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
