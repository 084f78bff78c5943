package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultReceiptNumberTemplate = "RCP{YYYY}{MM}{DD}{SEQ4}"

// FormatReceiptNumber renders template for the local sale date and the day's
// sequence value. Padded sequences widen rather than wrap once they overflow.
func FormatReceiptNumber(template string, soldAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("receipt number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid receipt sequence: %d", seq)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", soldAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", soldAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", soldAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", soldAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in receipt format: %s", out)
	}
	return out, nil
}

// SequenceDay is the counter key for a sale made at soldAt in loc.
func SequenceDay(soldAt time.Time, loc *time.Location) string {
	return soldAt.In(loc).Format("20060102")
}
