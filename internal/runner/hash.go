package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
)

// SettingsHash fingerprints a settings snapshot. Runs with equal hashes were
// evaluated under identical settings. The JSON snapshot is returned for
// storage alongside the hash.
func SettingsHash(s domain.Settings) (string, []byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", nil, eris.Wrap(err, "runner: encode settings")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}
