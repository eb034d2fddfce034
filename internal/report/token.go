package report

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
)

// verificationTokenField is the hidden input the service embeds in its login
// page for anti-forgery protection.
const verificationTokenField = "__RequestVerificationToken"

// extractVerificationToken scans an HTML page for the anti-forgery hidden
// input and returns its value.
func extractVerificationToken(page []byte) (string, error) {
	tz := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch tz.Next() {
		case html.ErrorToken:
			return "", fmt.Errorf("no %s input found in login page", verificationTokenField)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tz.TagName()
			if string(name) != "input" || !hasAttr {
				continue
			}
			var fieldName, value string
			for {
				key, val, more := tz.TagAttr()
				switch string(key) {
				case "name":
					fieldName = string(val)
				case "value":
					value = string(val)
				}
				if !more {
					break
				}
			}
			if fieldName == verificationTokenField {
				if value == "" {
					return "", fmt.Errorf("%s input has empty value", verificationTokenField)
				}
				return value, nil
			}
		}
	}
}
