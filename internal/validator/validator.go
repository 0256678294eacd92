// Package validator checks translated documents. Structure decides whether a
// document may be saved at all. Balance and LanguageCheck are advisory: one
// compares tag pairing with the source, the other says whether the visible
// text reads as the target language.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/epubtran/internal/detector"
)

// minDetectRunes is the shortest visible text worth running detection on.
const minDetectRunes = 20

// ErrWrongLanguage is wrapped by the error LanguageCheck.Check returns on a
// mismatch.
var ErrWrongLanguage = errors.New("document is not in the target language")

// LanguageCheck compares the detected language of a document with the
// requested one.
type LanguageCheck struct {
	det *detector.Detector
}

// NewLanguageCheck uses the shared lingua-go detector.
func NewLanguageCheck() *LanguageCheck {
	return &LanguageCheck{det: detector.Shared()}
}

// Check returns nil when the visible text of markup is in targetLang, is too
// short to judge, or cannot be detected. targetLang is an ISO 639-1 code; an
// empty code disables the check.
func (c *LanguageCheck) Check(markup []byte, targetLang string) error {
	if targetLang == "" {
		return nil
	}
	return c.CheckText(detector.Text(markup), targetLang)
}

// CheckText is Check on plain text.
func (c *LanguageCheck) CheckText(text, targetLang string) error {
	text = strings.TrimSpace(text)
	if targetLang == "" || len([]rune(text)) < minDetectRunes {
		return nil
	}
	detected, ok := c.det.DetectISO(text)
	if !ok || strings.EqualFold(detected, targetLang) {
		return nil
	}
	return fmt.Errorf("%w: expected %s, detected %s", ErrWrongLanguage, targetLang, detected)
}
