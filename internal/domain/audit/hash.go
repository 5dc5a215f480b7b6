package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// hashPreimage mirrors Entry minus the entry_hash field. Key names must stay
// in lockstep with Entry; the canonical form sorts keys, so only names and
// values matter for the digest. Changing either requires bumping
// LedgerFormatVersion.
type hashPreimage struct {
	Timestamp string   `json:"timestamp"`
	Action    string   `json:"action"`
	Actor     Actor    `json:"actor"`
	Resource  string   `json:"resource"`
	Decision  Decision `json:"decision"`
	Policy    string   `json:"policy"`
	Detail    string   `json:"detail"`
	Channel   string   `json:"channel"`
	PrevHash  string   `json:"prev_hash"`
}

// ComputeHash returns the SHA-256 hex digest of the entry's canonical JSON
// preimage (every field except entry_hash, RFC 8785 canonical form). The
// stored EntryHash value does not participate.
func (e Entry) ComputeHash() (string, error) {
	pre := hashPreimage{
		Timestamp: e.Timestamp,
		Action:    e.Action,
		Actor:     e.Actor,
		Resource:  e.Resource,
		Decision:  e.Decision,
		Policy:    e.Policy,
		Detail:    e.Detail,
		Channel:   e.Channel,
		PrevHash:  e.PrevHash,
	}
	raw, err := json.Marshal(pre)
	if err != nil {
		return "", fmt.Errorf("marshal hash preimage: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash preimage: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and stores the entry's hash. The entry must already carry
// its final field values, including PrevHash.
func (e *Entry) Seal() error {
	h, err := e.ComputeHash()
	if err != nil {
		return err
	}
	e.EntryHash = h
	return nil
}
