package resource

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"
)

// Write sends res as the HTTP response to r.
func Write(w http.ResponseWriter, r *http.Request, res Result) error {
	switch v := res.(type) {
	case Handled:
		return nil
	case NotModified:
		w.WriteHeader(http.StatusNotModified)
		return nil
	case FromFS:
		return writeFS(w, r, v)
	case FromStream:
		return writeStream(w, v)
	case FromGenerator:
		setCaching(w, v.MaxAge)
		w.Header().Set("Content-Type", orDefault(v.ContentType))
		if err := v.Generate(w); err != nil {
			return fmt.Errorf("failed to generate resource: %w", err)
		}
		return nil
	default:
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
}

func writeFS(w http.ResponseWriter, r *http.Request, v FromFS) error {
	f, err := v.FS.Open(v.File)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", v.File, err)
	}

	setCaching(w, v.MaxAge)
	if ct := mime.TypeByExtension(path.Ext(v.File)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(v.File), info.ModTime(), rs)
		return nil
	}

	w.Header().Set("Content-Type", orDefault(w.Header().Get("Content-Type")))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if !info.ModTime().IsZero() {
		w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, f)
	return err
}

func writeStream(w http.ResponseWriter, v FromStream) error {
	rc, err := v.Open()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return fmt.Errorf("failed to open resource stream: %w", err)
	}
	defer rc.Close()

	setCaching(w, v.MaxAge)
	w.Header().Set("Content-Type", orDefault(v.ContentType))
	if !v.ModTime.IsZero() {
		w.Header().Set("Last-Modified", v.ModTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, rc)
	return err
}

func setCaching(w http.ResponseWriter, maxAge time.Duration) {
	if maxAge > 0 {
		w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(maxAge/time.Second)))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
}

func orDefault(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
