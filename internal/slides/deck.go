package slides

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadDeck decodes a deck document and validates it.
func ReadDeck(r io.Reader) (Deck, error) {
	var d Deck
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Deck{}, fmt.Errorf("decode slides: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Deck{}, err
	}
	return d, nil
}

// LoadDeck reads a deck document from path.
func LoadDeck(path string) (Deck, error) {
	f, err := os.Open(path)
	if err != nil {
		return Deck{}, fmt.Errorf("open slides file: %w", err)
	}
	defer f.Close()
	return ReadDeck(f)
}
