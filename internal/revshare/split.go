package revshare

import (
	"math"

	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
)

// MaxBps is 100% expressed in basis points.
const MaxBps uint16 = 10000

// maxSplittableGross keeps the intermediate product inside uint64.
const maxSplittableGross = math.MaxUint64 / uint64(MaxBps)

// Split divides a gross amount between platform fee and creator net using
// integer arithmetic only, so fee + net == gross holds for every input.
// revenueShareBps is the creator's share; the platform keeps the remainder.
// The fee is rounded half-up.
func Split(grossMinor uint64, revenueShareBps uint16) (feeMinor, netMinor uint64, err error) {
	if revenueShareBps > MaxBps {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "revenue share bps exceeds 10000")
	}
	if grossMinor > maxSplittableGross {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "gross amount too large to split")
	}

	platformBps := uint64(MaxBps - revenueShareBps)
	feeMinor = (grossMinor*platformBps + uint64(MaxBps)/2) / uint64(MaxBps)
	netMinor = grossMinor - feeMinor
	return feeMinor, netMinor, nil
}
