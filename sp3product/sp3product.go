// Package sp3product implements the SP3 filename grammar and a minimal SP3
// body parser, as specified in section 6.2 and section 4.5 of the design
// specification. The full numerical SP3 format (clock events, correlation
// records, velocity) is out of scope per section 1 ("the SP3 file parser");
// this package extracts exactly what the Satellite Orbit Store needs: per-
// epoch, per-satellite ECEF positions.
//
// Grounded on the filename/path grammar given in
// ground-control/src/data/sp3.rs.
package sp3product

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/geoceiver/cddis-archiver/gpst"
)

// filenamePattern is compiled once at package level to avoid recompilation
// per call, matching the teacher's s3URIPattern convention.
var filenamePattern = regexp.MustCompile(`^(?P<AC>.{3})0(?P<PROJ>.{3})(?P<TYP>.{3})_(?P<TIME>[0-9]{11})_(?P<PER>.*)_(?P<SMP>.*)_(?P<CNT>.*)\.(?P<FMT>.*)\.gz$`)

// pathPattern matches the archive path portion, section 6.2.
var pathPattern = regexp.MustCompile(`^/cddis/(?P<WEEK>.{4})/(?P<FILENAME>.*)$`)

// Fields holds the parsed filename grammar tokens from section 6.2.
type Fields struct {
	AnalysisCenter string // AC
	Project        string // PROJ, gate: ingestion acts only when == "OPS"
	ProductType    string // TYP, gate: ingestion acts only when == "ULT"
	ProductRunID   uint64 // TIME, an 11-digit unsigned integer
	Period         string // PER
	Sampling       string // SMP, raw digits+unit token
	ContentKind    string // CNT, gate: ingestion acts only when == "ORB"
	Format         string // FMT, gate: ingestion acts only when == "SP3"
}

// ParseFilename parses a bare filename against the SP3 grammar from
// section 6.2. ok is false when the filename does not match; this is not an
// error (section 4.5: "Parse/path errors for SP3 detection silently skip
// ingestion without failing the archival").
func ParseFilename(filename string) (Fields, bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return Fields{}, false
	}
	names := filenamePattern.SubexpNames()
	raw := make(map[string]string, len(names))
	for i, name := range names {
		if name != "" {
			raw[name] = m[i]
		}
	}

	runID, err := strconv.ParseUint(raw["TIME"], 10, 64)
	if err != nil {
		return Fields{}, false
	}

	return Fields{
		AnalysisCenter: raw["AC"],
		Project:        raw["PROJ"],
		ProductType:    raw["TYP"],
		ProductRunID:   runID,
		Period:         raw["PER"],
		Sampling:       raw["SMP"],
		ContentKind:    raw["CNT"],
		Format:         raw["FMT"],
	}, true
}

// ParsePath splits an archive path into its week and filename components,
// matching `^/cddis/(?P<WEEK>.{4})/(?P<FILENAME>.*)$` from section 6.2.
func ParsePath(path string) (week string, filename string, ok bool) {
	m := pathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}
	names := pathPattern.SubexpNames()
	for i, name := range names {
		switch name {
		case "WEEK":
			week = m[i]
		case "FILENAME":
			filename = m[i]
		}
	}
	return week, filename, true
}

// IsOrbitProduct reports whether fields identify an ultra-rapid operational
// orbit product file, the only kind the SP3 Ingestion Handler acts on
// (section 6.2: "Ingestion acts only when PROJ == OPS, TYP == ULT,
// CNT == ORB, FMT == SP3").
func (f Fields) IsOrbitProduct() bool {
	return f.Project == "OPS" && f.ProductType == "ULT" && f.ContentKind == "ORB" && f.Format == "SP3"
}

// SamplingSeconds parses the SMP token (decimal digits followed by a single
// letter unit in {s, m, h, d}) into seconds, per section 4.5 step 1 and
// section 6.2.
func SamplingSeconds(smp string) (int64, error) {
	if len(smp) < 2 {
		return 0, fmt.Errorf("invalid sampling token %q", smp)
	}
	unit := smp[len(smp)-1]
	digits := smp[:len(smp)-1]
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sampling token %q: %w", smp, err)
	}
	switch unit {
	case 's':
		return n, nil
	case 'm':
		return n * 60, nil
	case 'h':
		return n * 3600, nil
	case 'd':
		return n * 86400, nil
	default:
		return 0, fmt.Errorf("invalid sampling unit %q in token %q", string(unit), smp)
	}
}

// Record is one (epoch, satellite, position) sample from an SP3 body, as
// described in section 4.5 step 4.
type Record struct {
	GPSTSeconds          float64
	Satellite            string // e.g. "G13", "E34"
	ConstellationPrefix  byte   // first character of Satellite
	PosECEFKm            [3]float64
}

// epochLinePrefix marks an SP3 epoch header line, e.g.
// "*  2025  3  9  0  0  0.00000000".
const epochLinePrefix = "*"

// Parse reads an SP3 ASCII body (already gzip-decompressed) and returns its
// records in file order, plus the satellites that appear, in first-seen
// order, as specified in section 4.5 steps 4-5. This implements only the
// position-record subset of the SP3 grammar; clock, velocity, and
// correlation records are ignored, consistent with the Orbit type not
// carrying those fields by default (section 3).
func Parse(r io.Reader) ([]Record, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []Record
	seen := make(map[string]bool)
	var order []string

	var currentEpoch float64
	haveEpoch := false

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, epochLinePrefix):
			epoch, err := parseEpochLine(line)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to parse SP3 epoch line %q: %w", line, err)
			}
			currentEpoch = epoch
			haveEpoch = true

		case strings.HasPrefix(line, "P") && haveEpoch:
			rec, err := parsePositionLine(line, currentEpoch)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to parse SP3 position line %q: %w", line, err)
			}
			records = append(records, rec)
			if !seen[rec.Satellite] {
				seen[rec.Satellite] = true
				order = append(order, rec.Satellite)
			}

		case line == "EOF":
			return records, order, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read SP3 body: %w", err)
	}

	return records, order, nil
}

// parseEpochLine parses "*  yyyy mm dd hh mm ss.ssssssss" into GPST seconds.
func parseEpochLine(line string) (float64, error) {
	fields := strings.Fields(strings.TrimPrefix(line, epochLinePrefix))
	if len(fields) != 6 {
		return 0, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, err
	}
	month, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, err
	}
	day, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, err
	}
	hour, err := strconv.Atoi(fields[3])
	if err != nil {
		return 0, err
	}
	minute, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0, err
	}
	secFloat, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return 0, err
	}
	sec := int(secFloat)
	nsec := int64((secFloat - float64(sec)) * 1e9)

	t := time.Date(year, time.Month(month), day, hour, minute, sec, int(nsec), time.UTC)
	return gpst.SecondsAt(t), nil
}

// parsePositionLine parses "PG13  xxxx.xxxxxx yyyy.yyyyyy zzzz.zzzzzz  clock"
// (positions in km) into a Record.
func parsePositionLine(line string, epoch float64) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Record{}, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}
	sat := strings.TrimPrefix(fields[0], "P")
	if sat == "" {
		return Record{}, fmt.Errorf("empty satellite id")
	}

	x, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid x coordinate: %w", err)
	}
	y, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid y coordinate: %w", err)
	}
	z, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid z coordinate: %w", err)
	}

	return Record{
		GPSTSeconds:         epoch,
		Satellite:           sat,
		ConstellationPrefix: sat[0],
		PosECEFKm:           [3]float64{x, y, z},
	}, nil
}
