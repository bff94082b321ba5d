package ruleengine

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
)

// hashSeparator joins the hash parts. Part order is part of the contract:
// (flagKey, targetingKey) for the rollout gate and
// (flagKey, ruleName, targetingKey) for rule and default-rule allocations.
const hashSeparator = ":"

// Bucket maps the joined parts to a stable percentile in [0, 100).
//
// The construction is a cross-platform compatibility contract and must not
// change: MD5 over the UTF-8 bytes, the first 8 digest bytes read as a
// little-endian integer, the sign bit cleared, modulo 100.
func Bucket(parts ...string) int {
	sum := md5.Sum([]byte(strings.Join(parts, hashSeparator)))
	v := binary.LittleEndian.Uint64(sum[:8]) & math.MaxInt64
	return int(v % 100)
}
