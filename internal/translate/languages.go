// Package translate renders subtitle text into other languages.
package translate

import "sort"

// Languages maps the supported target codes to their English names.
var Languages = map[string]string{
	"hi":    "Hindi",
	"ta":    "Tamil",
	"te":    "Telugu",
	"kn":    "Kannada",
	"ml":    "Malayalam",
	"mr":    "Marathi",
	"bn":    "Bengali",
	"gu":    "Gujarati",
	"pa":    "Punjabi",
	"ur":    "Urdu",
	"fr":    "French",
	"es":    "Spanish",
	"de":    "German",
	"ar":    "Arabic",
	"ja":    "Japanese",
	"ko":    "Korean",
	"zh-CN": "Chinese",
}

// Supported reports whether lang is a known target code.
func Supported(lang string) bool {
	_, ok := Languages[lang]
	return ok
}

// Codes lists the supported codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(Languages))
	for c := range Languages {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
