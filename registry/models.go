package registry

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/apperr"
)

const (
	MaxAuthors = 10
	// TotalSplitBps is the sum every split set must reach.
	TotalSplitBps = 10000
)

var (
	ErrInvalidHash       = apperr.New(apperr.Validation, "registry: invalid content hash")
	ErrEmptyURI          = apperr.New(apperr.Validation, "registry: metadata uri required")
	ErrEmptyReason       = apperr.New(apperr.Validation, "registry: dispute reason required")
	ErrAuthorCount       = apperr.New(apperr.Validation, "registry: authors must number 1 to 10")
	ErrSplitLength       = apperr.New(apperr.Validation, "registry: authors and splits length mismatch")
	ErrSplitSum          = apperr.New(apperr.Validation, "registry: splits must sum to 10000 bps")
	ErrDuplicateAuthor   = apperr.New(apperr.Validation, "registry: duplicate author")
	ErrUnknownWorkType   = apperr.New(apperr.Validation, "registry: unknown work type")
	ErrInvalidFee        = apperr.New(apperr.Validation, "registry: fee must be a whole non-negative amount")
	ErrInvalidPayment    = apperr.New(apperr.Validation, "registry: payment must be a whole non-negative amount")
	ErrWorkNotFound      = apperr.New(apperr.Validation, "registry: work not found")
	ErrDisputeNotFound   = apperr.New(apperr.Validation, "registry: dispute not found")
	ErrZeroAddress       = apperr.New(apperr.Validation, "registry: zero address")
	ErrCallerNotAuthor   = apperr.New(apperr.Authorization, "registry: caller must be one of the authors")
	ErrNotAuthor         = apperr.New(apperr.Authorization, "registry: only an author may update metadata")
	ErrAuthorDispute     = apperr.New(apperr.Authorization, "registry: authors cannot dispute their own work")
	ErrNotMediator       = apperr.New(apperr.Authorization, "registry: caller is not an authorized mediator")
	ErrNotOwner          = apperr.New(apperr.Authorization, "registry: caller is not the owner")
	ErrInsufficientFee   = apperr.New(apperr.Economic, "registry: insufficient fee")
	ErrNothingToWithdraw = apperr.New(apperr.Economic, "registry: no collected fees")
	ErrDuplicateHash     = apperr.New(apperr.Conflict, "registry: hash already registered")
	ErrPaused            = apperr.New(apperr.Unavailable, "registry: paused")
	ErrNotPaused         = apperr.New(apperr.Conflict, "registry: not paused")
	ErrAlreadyPaused     = apperr.New(apperr.Conflict, "registry: already paused")
)

// WorkType classifies a registered work.
type WorkType uint8

const (
	WorkMusic WorkType = iota
	WorkLyrics
	WorkInstrumental
	WorkRemix
	WorkCover
	WorkSample
	WorkAlbum
	WorkEP
	WorkSingle
	WorkCompilation
	WorkSoundtrack
)

var workTypeNames = [...]string{
	WorkMusic:        "music",
	WorkLyrics:       "lyrics",
	WorkInstrumental: "instrumental",
	WorkRemix:        "remix",
	WorkCover:        "cover",
	WorkSample:       "sample",
	WorkAlbum:        "album",
	WorkEP:           "ep",
	WorkSingle:       "single",
	WorkCompilation:  "compilation",
	WorkSoundtrack:   "soundtrack",
}

func (w WorkType) String() string {
	if w.Valid() {
		return workTypeNames[w]
	}
	return "unknown"
}

func (w WorkType) Valid() bool { return int(w) < len(workTypeNames) }

// ParseWorkType accepts the lower-case name of a work type.
func ParseWorkType(name string) (WorkType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range workTypeNames {
		if n == name {
			return WorkType(i), nil
		}
	}
	return 0, ErrUnknownWorkType
}

// ContentHash is the Keccak-256 digest anchoring a work.
type ContentHash [32]byte

// HashContent digests raw content the same way works are anchored.
func HashContent(content []byte) ContentHash {
	var h ContentHash
	copy(h[:], account.Keccak256(content))
	return h
}

// ParseContentHash decodes a 0x-prefixed or bare 64-digit hex hash.
func ParseContentHash(s string) (ContentHash, error) {
	var h ContentHash
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil || len(raw) != len(h) {
		return h, ErrInvalidHash
	}
	copy(h[:], raw)
	return h, nil
}

func (h ContentHash) String() string { return "0x" + hex.EncodeToString(h[:]) }

func (h ContentHash) IsZero() bool { return h == ContentHash{} }

// Work is an immutable copyright anchor. Only MetadataURI and Disputed change
// after registration.
type Work struct {
	ID            uint64
	ContentHash   ContentHash
	MetadataURI   string
	Authors       []account.Address
	SplitsBps     []uint32
	WorkType      WorkType
	RegisteredAt  time.Time
	Disputed      bool
	PublicListing bool
}

func (w Work) clone() Work {
	w.Authors = append([]account.Address(nil), w.Authors...)
	w.SplitsBps = append([]uint32(nil), w.SplitsBps...)
	return w
}

// HasAuthor reports whether addr is one of the work's authors.
func (w Work) HasAuthor(addr account.Address) bool {
	for _, a := range w.Authors {
		if a == addr {
			return true
		}
	}
	return false
}

// RegisterParams is the registration request.
type RegisterParams struct {
	ContentHash   ContentHash
	MetadataURI   string
	Authors       []account.Address
	SplitsBps     []uint32
	WorkType      WorkType
	PublicListing bool
}

// Receipt reports the outcome of a fee-bearing operation. Refund is the
// overpayment returned to the caller within the same operation.
type Receipt struct {
	ID     uint64
	Fee    decimal.Decimal
	Refund decimal.Decimal
}

// Config holds the registry parameters fixed at construction. Fees are in wei.
type Config struct {
	Owner           account.Address
	RegistrationFee decimal.Decimal
	DisputeFee      decimal.Decimal
	// ResponseWindow sets Dispute.ResponseDeadline on creation; zero disables it.
	ResponseWindow time.Duration
}

// DefaultConfig returns the production fee schedule: 0.001 ETH to register,
// 0.01 ETH to dispute.
func DefaultConfig(owner account.Address) Config {
	return Config{
		Owner:           owner,
		RegistrationFee: decimal.New(1, 15),
		DisputeFee:      decimal.New(1, 16),
	}
}

func (c Config) validate() error {
	if c.Owner.IsZero() {
		return errors.New("registry: owner required")
	}
	if !validFee(c.RegistrationFee) || !validFee(c.DisputeFee) {
		return ErrInvalidFee
	}
	if c.ResponseWindow < 0 {
		return errors.New("registry: response window must not be negative")
	}
	return nil
}

func validFee(d decimal.Decimal) bool {
	return !d.IsNegative() && d.IsInteger()
}
