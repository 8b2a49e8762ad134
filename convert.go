package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/alefaraci/GoRaster/internal/oops"
	"github.com/alefaraci/GoRaster/internal/raster"
)

func openImage(path string, cfg *Config) (raster.Image, error) {
	return raster.Open(path, cfg.Convert.Options())
}

// bmpPath appends the .bmp suffix to an output name unless it is already there.
func bmpPath(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".bmp") {
		return name
	}
	return name + ".bmp"
}

// defaultOutputName is the input path without its extension.
func defaultOutputName(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input))
}

// ConvertFile converts one image and writes it to outputName with a .bmp
// suffix. It returns the path written.
func ConvertFile(inputPath, outputName string, cfg *Config) (string, error) {
	img, err := openImage(inputPath, cfg)
	if err != nil {
		return "", oops.New(err, "failed to read '%s'", inputPath)
	}

	bmp, err := img.ToBMP()
	if err != nil {
		return "", oops.New(err, "failed to convert '%s'", inputPath)
	}

	out := bmpPath(outputName)
	if err := writeFileAtomic(out, bmp); err != nil {
		return "", oops.New(err, "failed to write '%s'", out)
	}
	return out, nil
}

// writeFileAtomic writes to a uniquely named temporary file next to path and
// renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, src io.WriterTo) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.New().String()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := src.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func isUpToDate(input, output string) bool {
	outInfo, err := os.Stat(output)
	if err != nil {
		return false
	}
	inInfo, err := os.Stat(input)
	if err != nil {
		return false
	}
	return !outInfo.ModTime().Before(inInfo.ModTime())
}

func isSourceImage(path string) bool {
	_, err := raster.FormatForPath(path)
	return err == nil
}
