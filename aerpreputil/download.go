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

package aerpreputil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/aerprep/cloud"
)

// downloadRetries is the number of times a failed download is retried.
const downloadRetries = 5

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob address.
// If it is, it downloads the file and
// returns the path to the downloaded file.
// For shapefiles, it downloads all associated files and
// returns the path to the file with the ".shp" extension.
func maybeDownload(ctx context.Context, path string, log logrus.FieldLogger) (string, error) {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return downloadHTTP(ctx, path, log)
	}
	if cloud.IsBlob(path) {
		return downloadBlob(ctx, path)
	}
	return path, nil
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(ctx context.Context, path string, log logrus.FieldLogger) (string, error) {
	dir, err := ioutil.TempDir("", "aerprep")
	if err != nil {
		return "", fmt.Errorf("aerprep: creating temporary download directory: %v", err)
	}
	fnames := cloud.ExpandShp(path)
	for _, fname := range fnames {
		local := filepath.Join(dir, filepath.Base(fname))
		err := backoff.RetryNotify(
			func() error { return httpGet(ctx, fname, local) },
			backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), downloadRetries), ctx),
			func(err error, d time.Duration) {
				log.WithField("url", fname).Warnf("%v: retrying in %v", err, d)
			},
		)
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

// httpGet copies the contents of url to the local file at path.
// Client errors are not retried.
func httpGet(ctx context.Context, url, path string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("aerprep: downloading %s: %v", url, err))
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("aerprep: downloading %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("aerprep: downloading %s: %s", url, resp.Status)
		if resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	w, err := os.Create(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("aerprep: creating file for download: %v", err))
	}
	if _, err = io.Copy(w, resp.Body); err != nil {
		w.Close()
		return fmt.Errorf("aerprep: downloading %s: %v", url, err)
	}
	return w.Close()
}

// downloadBlob copies a file from blob storage to a temporary directory
// and returns the path to the copy.
func downloadBlob(ctx context.Context, path string) (string, error) {
	dir, err := ioutil.TempDir("", "aerprep")
	if err != nil {
		return "", fmt.Errorf("aerprep: creating temporary download directory: %v", err)
	}
	fnames := cloud.ExpandShp(path)
	for _, fname := range fnames {
		b, err := cloud.ReadFile(ctx, fname)
		if err != nil {
			return "", err
		}
		if err = ioutil.WriteFile(filepath.Join(dir, filepath.Base(fname)), b, 0644); err != nil {
			return "", fmt.Errorf("aerprep: writing downloaded file: %v", err)
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}
