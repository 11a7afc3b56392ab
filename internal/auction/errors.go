package auction

import "errors"

// Rejection reasons for bid arbitration, one sentinel per validation step.
// Callers classify with errors.Is; the server never retries these.
var (
	// ErrAuctionNotFound is returned when the auction does not exist.
	ErrAuctionNotFound = errors.New("auction: not found")

	// ErrAuctionNotActive is returned when the auction has not started or
	// is already finalized.
	ErrAuctionNotActive = errors.New("auction: not active")

	// ErrAuctionExpired is returned when the auction's end time has
	// passed, even if the expiry sweep has not finalized it yet.
	ErrAuctionExpired = errors.New("auction: already ended")

	// ErrBidTooLow is returned when the amount is below the minimum
	// next bid.
	ErrBidTooLow = errors.New("auction: bid below minimum")

	// ErrInsufficientFunds is returned when the bidder's balance does not
	// cover the amount.
	ErrInsufficientFunds = errors.New("auction: insufficient funds")

	// ErrDuplicateBid is returned when a client bid id was already
	// submitted, so applying it again risks a double bid.
	ErrDuplicateBid = errors.New("auction: duplicate bid id")
)

// IsRejection reports whether err is a business validation rejection, as
// opposed to a storage or transport failure. Rejections are permanent: an
// identical resubmission cannot succeed.
func IsRejection(err error) bool {
	for _, sentinel := range []error{
		ErrAuctionNotFound,
		ErrAuctionNotActive,
		ErrAuctionExpired,
		ErrBidTooLow,
		ErrInsufficientFunds,
		ErrDuplicateBid,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
