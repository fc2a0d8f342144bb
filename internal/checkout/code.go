package checkout

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTicketCode builds a human-presentable code from a millisecond
// timestamp and a short random suffix, both base36. Collisions are
// unlikely but not impossible; the ledger's unique constraint decides.
func NewTicketCode() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))

	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}

	return "TICKET-" + ts + "-" + string(suffix)
}
