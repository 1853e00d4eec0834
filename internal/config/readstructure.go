package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SegmentKind classifies cycles in a read structure.
type SegmentKind byte

const (
	Template  SegmentKind = 'T'
	Barcode   SegmentKind = 'B'
	Molecular SegmentKind = 'M'
	Skip      SegmentKind = 'S'
)

// Segment is a run of cycles of one kind.
type Segment struct {
	Length int
	Kind   SegmentKind
}

// ReadStructure is a parsed demux_reads descriptor such as "151T8B8B151T".
type ReadStructure []Segment

var segmentRe = regexp.MustCompile(`(\d+)([TBMS])`)

// ParseReadStructure parses a read structure string. Whitespace is ignored.
func ParseReadStructure(s string) (ReadStructure, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, fmt.Errorf("empty read structure")
	}
	matches := segmentRe.FindAllStringSubmatchIndex(s, -1)
	var rs ReadStructure
	pos := 0
	for _, m := range matches {
		if m[0] != pos {
			return nil, fmt.Errorf("invalid read structure %q at offset %d", s, pos)
		}
		n, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid segment length in %q", s)
		}
		rs = append(rs, Segment{Length: n, Kind: SegmentKind(s[m[4]])})
		pos = m[1]
	}
	if pos != len(s) {
		return nil, fmt.Errorf("invalid read structure %q at offset %d", s, pos)
	}
	return rs, nil
}

// TemplateReads returns the number of template segments, i.e. the R1..Rn
// FASTQ files produced per sample and lane.
func (rs ReadStructure) TemplateReads() int {
	return rs.count(Template)
}

// IndexReads returns the number of barcode segments.
func (rs ReadStructure) IndexReads() int {
	return rs.count(Barcode)
}

func (rs ReadStructure) count(kind SegmentKind) int {
	n := 0
	for _, seg := range rs {
		if seg.Kind == kind {
			n++
		}
	}
	return n
}

// Basesmask converts the read structure to bcl2fastq --use-bases-mask
// syntax, e.g. "151T8B8B151T" -> "y151,i8,i8,y151".
func (rs ReadStructure) Basesmask() string {
	parts := make([]string, 0, len(rs))
	for _, seg := range rs {
		var c string
		switch seg.Kind {
		case Template:
			c = "y"
		case Barcode:
			c = "i"
		default:
			c = "n"
		}
		parts = append(parts, c+strconv.Itoa(seg.Length))
	}
	return strings.Join(parts, ",")
}

// String returns the canonical descriptor form.
func (rs ReadStructure) String() string {
	var b strings.Builder
	for _, seg := range rs {
		b.WriteString(strconv.Itoa(seg.Length))
		b.WriteByte(byte(seg.Kind))
	}
	return b.String()
}

// BasesmaskTemplateReads counts the template ("y") segments of a bcl2fastq
// basesmask such as "y150n,i8n,y150n".
func BasesmaskTemplateReads(mask string) int {
	n := 0
	for _, part := range strings.Split(mask, ",") {
		part = strings.TrimSpace(part)
		if part != "" && (part[0] == 'y' || part[0] == 'Y') {
			n++
		}
	}
	return n
}
