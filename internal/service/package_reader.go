package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"synxronmarket/internal/domain"
)

const (
	manifestEntry      = "manifest.json"
	defaultEntryPoint  = "index.js"
	defaultVersion     = "1.0.0"
	defaultAuthor      = "Unknown"
	defaultMinApp      = "1.0.0"
	maxPackageEntries  = 1000
	uncompressedFactor = 8
)

var (
	packageIDPattern   = regexp.MustCompile(`^[a-z][a-z0-9_-]*(\.[a-z0-9][a-z0-9_-]*)+$`)
	defaultIconEntries = []string{"icon.png", "icon.svg", "icon.jpg", "icon.jpeg", "icon.webp"}
)

// ExtractedPackage содержимое проверенного пакета и поля, извлеченные из манифеста
type ExtractedPackage struct {
	Manifest      domain.Manifest
	Version       string
	Name          string
	Description   string
	Author        string
	MinAppVersion string
	Category      string
	Tags          []string
	SourceURL     string
	ReleaseNotes  string
	EntryPoint    string
	Code          []byte
	IconName      string
	Icon          []byte
}

type PackageReader struct {
	maxSize int64
}

func NewPackageReader(maxSize int64) *PackageReader {
	return &PackageReader{maxSize: maxSize}
}

// ValidatePackageID проверяет reverse-domain идентификатор пакета
func ValidatePackageID(packageID string) error {
	if !packageIDPattern.MatchString(packageID) {
		return fmt.Errorf("%w: package id %q must be reverse-domain, e.g. com.example.plugin", domain.ErrPackageInvalid, packageID)
	}
	return nil
}

// Read распаковывает zip-пакет, проверяет пути записей и читает манифест
func (r *PackageReader) Read(data []byte, packageID string) (*ExtractedPackage, error) {
	if err := ValidatePackageID(packageID); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty package", domain.ErrPackageInvalid)
	}
	if r.maxSize > 0 && int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("%w: package exceeds %d bytes", domain.ErrPackageInvalid, r.maxSize)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open archive: %v", domain.ErrPackageInvalid, err)
	}
	if len(zr.File) > maxPackageEntries {
		return nil, fmt.Errorf("%w: too many entries (%d)", domain.ErrPackageInvalid, len(zr.File))
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		name, err := cleanEntryName(f.Name)
		if err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		entries[name] = f
	}

	budget := r.uncompressedBudget()

	manifestFile, ok := entries[manifestEntry]
	if !ok {
		return nil, fmt.Errorf("%w: %s is missing", domain.ErrPackageInvalid, manifestEntry)
	}
	raw, err := readEntry(manifestFile, &budget)
	if err != nil {
		return nil, err
	}

	manifest := domain.Manifest{}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest is not a JSON object: %v", domain.ErrPackageInvalid, err)
	}

	pkg := &ExtractedPackage{
		Manifest:      manifest,
		Version:       withDefault(manifest.String("version"), defaultVersion),
		Name:          withDefault(manifest.String("name"), packageID),
		Description:   manifest.String("description"),
		Author:        withDefault(manifest.String("author"), defaultAuthor),
		MinAppVersion: withDefault(manifest.String("min_app_version", "minAppVersion"), defaultMinApp),
		Category:      manifest.String("category"),
		Tags:          manifest.StringSlice("tags"),
		SourceURL:     manifest.String("source_url", "sourceUrl"),
		ReleaseNotes:  manifest.String("release_notes", "releaseNotes"),
		EntryPoint:    withDefault(manifest.String("entry_point", "entryPoint"), defaultEntryPoint),
	}
	if pkg.Tags == nil {
		pkg.Tags = []string{}
	}

	if _, err := semver.NewVersion(pkg.Version); err != nil {
		return nil, fmt.Errorf("%w: version %q is not a semantic version", domain.ErrPackageInvalid, pkg.Version)
	}
	if _, err := semver.NewVersion(pkg.MinAppVersion); err != nil {
		return nil, fmt.Errorf("%w: min_app_version %q is not a semantic version", domain.ErrPackageInvalid, pkg.MinAppVersion)
	}

	entryPoint, err := cleanEntryName(pkg.EntryPoint)
	if err != nil {
		return nil, err
	}
	codeFile, ok := entries[entryPoint]
	if !ok {
		return nil, fmt.Errorf("%w: entry point %s is missing", domain.ErrPackageInvalid, pkg.EntryPoint)
	}
	if pkg.Code, err = readEntry(codeFile, &budget); err != nil {
		return nil, err
	}

	iconCandidates := defaultIconEntries
	if icon := manifest.String("icon"); icon != "" {
		iconName, err := cleanEntryName(icon)
		if err != nil {
			return nil, err
		}
		iconCandidates = []string{iconName}
	}
	for _, name := range iconCandidates {
		if f, ok := entries[name]; ok {
			if pkg.Icon, err = readEntry(f, &budget); err != nil {
				return nil, err
			}
			pkg.IconName = name
			break
		}
	}

	return pkg, nil
}

func (r *PackageReader) uncompressedBudget() int64 {
	if r.maxSize <= 0 {
		return 1 << 62
	}
	return r.maxSize * uncompressedFactor
}

// cleanEntryName отклоняет абсолютные пути и выход за корень пакета
func cleanEntryName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: unsafe entry path %q", domain.ErrPackageInvalid, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: entry path %q escapes package root", domain.ErrPackageInvalid, name)
		}
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", fmt.Errorf("%w: unsafe entry path %q", domain.ErrPackageInvalid, name)
	}
	return clean, nil
}

func readEntry(f *zip.File, budget *int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", domain.ErrPackageInvalid, f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, *budget+1))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", domain.ErrPackageInvalid, f.Name, err)
	}
	if int64(len(data)) > *budget {
		return nil, fmt.Errorf("%w: package expands beyond allowed size", domain.ErrPackageInvalid)
	}
	*budget -= int64(len(data))
	return data, nil
}

func withDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
