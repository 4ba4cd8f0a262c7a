// Package pathbuilder renders an instrument's templates against a scan
// allocation into the directory, scan-file, and detector-file paths a
// client should write to.
package pathbuilder

import (
	"strconv"
	"strings"

	"github.com/DiamondLightSource/numtracker/internal/store"
	"github.com/DiamondLightSource/numtracker/internal/template"
)

// Result holds the rendered paths for one allocation. ScanFile and
// DetectorPaths are relative to Directory; the caller joins them.
type Result struct {
	Directory     string
	ScanFile      string
	DetectorPaths []string
}

// Build renders directory/scan/detector templates for one allocation.
// subdirectory defaults to "" when absent; detectors may be nil.
func Build(cfg store.InstrumentConfig, session template.Session, scanNumber int64, subdirectory string, detectors []string) (Result, error) {
	dirTpl, err := template.Parse(template.RoleDirectory, cfg.DirectoryTemplate)
	if err != nil {
		return Result{}, err
	}
	scanTpl, err := template.Parse(template.RoleScan, cfg.ScanTemplate)
	if err != nil {
		return Result{}, err
	}

	year := template.CurrentYear(nowFn())

	directory, err := dirTpl.Render(map[string]string{
		"instrument": cfg.Name,
		"proposal":   session.Proposal,
		"visit":      session.Visit,
		"year":       year,
	})
	if err != nil {
		return Result{}, err
	}

	scanNumberStr := strconv.FormatInt(scanNumber, 10)

	scanFile, err := scanTpl.Render(map[string]string{
		"instrument":   cfg.Name,
		"subdirectory": subdirectory,
		"scan_number":  scanNumberStr,
	})
	if err != nil {
		return Result{}, err
	}
	scanFile = collapseDoubleSlash(scanFile)

	var detectorPaths []string
	if len(detectors) > 0 {
		detTpl, err := template.Parse(template.RoleDetector, cfg.DetectorTemplate)
		if err != nil {
			return Result{}, err
		}
		normalised := template.NormaliseDetectorNames(detectors)
		detectorPaths = make([]string, len(normalised))
		for i, det := range normalised {
			p, err := detTpl.Render(map[string]string{
				"instrument":   cfg.Name,
				"subdirectory": subdirectory,
				"scan_number":  scanNumberStr,
				"detector":     det,
			})
			if err != nil {
				return Result{}, err
			}
			detectorPaths[i] = collapseDoubleSlash(p)
		}
	}

	return Result{Directory: directory, ScanFile: scanFile, DetectorPaths: detectorPaths}, nil
}

// collapseDoubleSlash collapses doubled path separators left behind
// when subdirectory is empty.
func collapseDoubleSlash(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
