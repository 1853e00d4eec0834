package strategy

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dyluth/digestiflow-demux/internal/config"
)

// ErrNoRunParameters is returned when no RunParameters.xml exists in the run folder.
var ErrNoRunParameters = errors.New("no RunParameters.xml in run folder")

// RunMetadata carries the run facts the selector needs.
type RunMetadata struct {
	ControlSoftwareMajor int // RTA major version; 0 when unknown
}

// Legacy reports whether the run was produced by first-generation control
// software, which only the legacy demultiplexer can read.
func (m RunMetadata) Legacy() bool {
	return m.ControlSoftwareMajor == 1
}

var runParameterFiles = []string{"RunParameters.xml", "runParameters.xml"}

// MetadataFor returns the run metadata for cfg: the configured rta_version if
// set, otherwise whatever DetectRunMetadata finds in the first input dir.
func MetadataFor(cfg *config.Config) (RunMetadata, error) {
	if cfg.Flowcell.RTAVersion > 0 {
		return RunMetadata{ControlSoftwareMajor: cfg.Flowcell.RTAVersion}, nil
	}
	if len(cfg.InputDirs) == 0 {
		return RunMetadata{}, ErrNoRunParameters
	}
	return DetectRunMetadata(cfg.InputDirs[0])
}

// DetectRunMetadata reads the RTA version from the run folder's
// RunParameters.xml.
func DetectRunMetadata(runDir string) (RunMetadata, error) {
	for _, name := range runParameterFiles {
		f, err := os.Open(filepath.Join(runDir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return RunMetadata{}, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer f.Close()

		version, err := findRTAVersion(f)
		if err != nil {
			return RunMetadata{}, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		major, err := majorVersion(version)
		if err != nil {
			return RunMetadata{}, err
		}
		return RunMetadata{ControlSoftwareMajor: major}, nil
	}
	return RunMetadata{}, ErrNoRunParameters
}

// findRTAVersion returns the text of the first RTAVersion/RtaVersion element
// at any depth.
func findRTAVersion(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("no RTAVersion element")
		}
		if err != nil {
			return "", err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, "RTAVersion") {
			continue
		}
		var value string
		if err := dec.DecodeElement(&value, &start); err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}

func majorVersion(version string) (int, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(version, "v"), "V")
	head := strings.SplitN(v, ".", 2)[0]
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("invalid RTA version %q", version)
	}
	return major, nil
}
