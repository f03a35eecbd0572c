package generator

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"strconv"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
)

var (
	adjectives = []string{
		"Vintage", "Modern", "Sleek", "Elegant", "Rustic",
		"Classic", "Minimalist", "Luxurious", "Handcrafted", "Artisanal",
		"Limited Edition", "Signature", "Designer", "Custom", "Bespoke",
	}
	nouns = []string{
		"Lamp", "Chair", "Table", "Sofa", "Desk",
		"Vase", "Sculpture", "Painting", "Print", "Photograph",
		"Cushion", "Candle", "Clock", "Mirror", "Ornament",
	}
)

// TokenGenerator builds mint requests for seeding sales. Ids are zero padded
// so that byte order matches numeric order.
type TokenGenerator struct {
	prefix string
	width  int
	random *mathrand.Rand
}

func NewTokenGenerator(prefix string, count int) *TokenGenerator {
	return &TokenGenerator{
		prefix: prefix,
		width:  len(strconv.Itoa(count)),
		random: mathrand.New(mathrand.NewSource(time.Now().UTC().UnixNano())),
	}
}

func (g *TokenGenerator) TokenID(i int) string {
	return fmt.Sprintf("%s-%0*d", g.prefix, g.width, i)
}

func (g *TokenGenerator) GenerateName() string {
	adjective := adjectives[g.random.Intn(len(adjectives))]
	noun := nouns[g.random.Intn(len(nouns))]

	return fmt.Sprintf("%s %s", adjective, noun)
}

func (g *TokenGenerator) GenerateImageURL() string {
	width := 300 + g.random.Intn(200)
	height := 300 + g.random.Intn(200)
	return fmt.Sprintf("https://picsum.photos/%d/%d", width, height)
}

// GenerateMints returns count mint requests owned by the crowdfund.
func (g *TokenGenerator) GenerateMints(count int) []crowdfund.MintRequest {
	mints := make([]crowdfund.MintRequest, 0, count)
	for i := 1; i <= count; i++ {
		extension, _ := json.Marshal(map[string]string{
			"name":  g.GenerateName(),
			"image": g.GenerateImageURL(),
		})
		mints = append(mints, crowdfund.MintRequest{
			TokenID:   g.TokenID(i),
			TokenURI:  fmt.Sprintf("https://metadata.example/%s.json", g.TokenID(i)),
			Extension: extension,
		})
	}
	return mints
}

// RunID is a short random hex tag for naming one batch of generated buyers.
func RunID() string {
	randomBytes := make([]byte, 5) // 10 hex chars
	if _, err := rand.Read(randomBytes); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(randomBytes)
}
