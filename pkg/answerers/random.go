package answerers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/metisearch/metis/pkg/core"
)

const randomStringLength = 24

// RandomAnswerer generates random values: "random int", "random string",
// "random uuid", "random color", "random sha256".
type RandomAnswerer struct{}

func NewRandomAnswerer() *RandomAnswerer { return &RandomAnswerer{} }

func (a *RandomAnswerer) Name() string       { return "random" }
func (a *RandomAnswerer) Keywords() []string { return []string{"random"} }

func (a *RandomAnswerer) Answer(ctx context.Context, query core.Query) ([]core.ResultRecord, error) {
	rest, ok := Triggered(a, query)
	if !ok {
		return nil, nil
	}

	var answer string
	switch strings.ToLower(strings.TrimSpace(rest)) {
	case "int", "number":
		n, err := rand.Int(rand.Reader, big.NewInt(1<<31))
		if err != nil {
			return nil, fmt.Errorf("generating random int: %w", err)
		}
		answer = n.String()
	case "string":
		buf := make([]byte, randomStringLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating random string: %w", err)
		}
		answer = base64.RawURLEncoding.EncodeToString(buf)[:randomStringLength]
	case "uuid":
		answer = uuid.NewString()
	case "color", "colour":
		buf := make([]byte, 3)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating random color: %w", err)
		}
		answer = "#" + hex.EncodeToString(buf)
	case "sha256", "hash":
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating random hash: %w", err)
		}
		answer = hex.EncodeToString(buf)
	default:
		return nil, nil
	}

	return []core.ResultRecord{{
		Engine: a.Name(),
		Area:   core.AreaAnswer,
		Answer: answer,
	}}, nil
}
