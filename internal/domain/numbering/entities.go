package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Sequence is the per-year counter row behind deferral numbers.
type Sequence struct {
	Year      int       `gorm:"column:year;primaryKey;autoIncrement:false"`
	LastValue int       `gorm:"column:last_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Sequence) TableName() string { return "deferral_sequences" }

var reNumber = regexp.MustCompile(`^DEF-(\d{2})-(\d{4,})$`)

// YearOf returns the two-digit year used in numbers issued at t.
func YearOf(t time.Time) int { return t.Year() % 100 }

// Prefix is "DEF-YY-" for a two-digit year.
func Prefix(yy int) string { return fmt.Sprintf("DEF-%02d-", yy) }

// Format renders DEF-YY-NNNN, zero-padding the sequence to four digits.
func Format(yy, seq int) string { return fmt.Sprintf("%s%04d", Prefix(yy), seq) }

// Parse splits a deferral number into its year and sequence.
func Parse(number string) (yy, seq int, ok bool) {
	m := reNumber.FindStringSubmatch(number)
	if m == nil {
		return 0, 0, false
	}
	yy, _ = strconv.Atoi(m[1])
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return yy, seq, true
}

// MaxSequence returns the highest sequence among numbers issued for yy.
func MaxSequence(yy int, numbers []string) int {
	max := 0
	for _, n := range numbers {
		y, s, ok := Parse(n)
		if ok && y == yy && s > max {
			max = s
		}
	}
	return max
}
