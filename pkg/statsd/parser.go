package statsd

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/atlassian/statsagg"
)

const (
	reasonMissingType = "missing type"
	reasonBadRate     = "has invalid sample rate"
)

// BadBit is a value|type[|@rate] group that was rejected while parsing.
type BadBit struct {
	Bit    string // The offending bit
	Record string // The record the bit was found in
	Reason string
}

// Packet is the parsed form of a single datagram.
type Packet struct {
	Records []string          // Raw non blank records
	Keys    []string          // Sanitized key of every record, before any bit is validated
	Samples []statsagg.Sample // Valid samples in the order they appeared
	BadBits []BadBit          // Rejected bits
}

// ParsePacket splits msg into newline separated records and every record into samples.
// It never fails, malformed input ends up in BadBits.
func ParsePacket(msg []byte) *Packet {
	p := &Packet{}
	for {
		idx := bytes.IndexByte(msg, '\n')
		var line []byte
		// protocol does not require line to end in \n
		if idx == -1 { // \n not found
			if len(msg) == 0 {
				break
			}
			line = msg
			msg = nil
		} else { // usual case
			line = msg[:idx]
			msg = msg[idx+1:]
		}
		p.parseRecord(string(line))
	}
	return p
}

func (p *Packet) parseRecord(record string) {
	if strings.TrimSpace(record) == "" {
		return
	}
	p.Records = append(p.Records, record)

	bits := strings.Split(record, ":")
	key := statsagg.SanitizeKey(bits[0])
	p.Keys = append(p.Keys, key)

	bits = bits[1:]
	if len(bits) == 0 {
		// A bare key counts as a single increment.
		p.Samples = append(p.Samples, statsagg.Sample{
			Key:   key,
			Type:  statsagg.COUNTER,
			Value: 1,
			Rate:  1,
		})
		return
	}
	for _, bit := range bits {
		s, reason := parseBit(key, bit)
		if reason != "" {
			p.BadBits = append(p.BadBits, BadBit{
				Bit:    bit,
				Record: record,
				Reason: reason,
			})
			continue
		}
		p.Samples = append(p.Samples, s)
	}
}

func parseBit(key, bit string) (statsagg.Sample, string) {
	fields := strings.Split(bit, "|")
	if len(fields) < 2 {
		return statsagg.Sample{}, reasonMissingType
	}
	s := statsagg.Sample{
		Key:  key,
		Type: statsagg.TypeFromTag(strings.TrimSpace(fields[1])),
		Rate: 1,
	}
	switch s.Type {
	case statsagg.TIMER, statsagg.GAUGE:
		s.Value = parseNumber(fields[0], 0)
	case statsagg.SET:
		s.StringValue = fields[0]
		if s.StringValue == "" {
			s.StringValue = "0"
		}
	case statsagg.COUNTER:
		if len(fields) > 2 && fields[2] != "" {
			rate, ok := parseRate(fields[2])
			if !ok {
				return statsagg.Sample{}, reasonBadRate
			}
			s.Rate = rate
		}
		s.Value = parseNumber(fields[0], 1)
	}
	return s, ""
}

// parseNumber returns def for anything that is not a finite number.
func parseNumber(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// parseRate parses an @<rate> modifier. Any finite rate above zero is accepted; rates above 1
// scale the value down.
func parseRate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '@' {
		return 0, false
	}
	rate, err := strconv.ParseFloat(s[1:], 64)
	if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, false
	}
	return rate, true
}
