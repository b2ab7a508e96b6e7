package incidents

import (
	"fmt"
	"math/rand"
	"time"
)

// FallbackNumber builds a tracking number locally when the counter-backed
// generator is unavailable: "IN" + last six digits of the unix-millis clock
// + three random digits.
//
// TODO: near-simultaneous callers can collide on the same millisecond and
// random suffix; replace with the counter once offline submission drops.
func FallbackNumber(now time.Time) string {
	millis := now.UnixMilli()
	return fmt.Sprintf("IN%06d%03d", millis%1000000, rand.Intn(1000))
}
