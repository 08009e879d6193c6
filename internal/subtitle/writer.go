package subtitle

import (
	"fmt"
	"io"
)

// WriteVTT renders subs as a WebVTT document.
func WriteVTT(w io.Writer, subs *Subtitles) error {
	if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
		return err
	}
	for _, c := range subs.Cues {
		if c.ID != "" {
			if _, err := fmt.Fprintf(w, "%s\n", c.ID); err != nil {
				return err
			}
		}
		settings := ""
		if c.Settings != "" {
			settings = " " + c.Settings
		}
		if _, err := fmt.Fprintf(w, "%s --> %s%s\n%s\n\n", formatVTTTimestamp(c.Start), formatVTTTimestamp(c.End), settings, c.Payload); err != nil {
			return err
		}
	}
	return nil
}

// WriteSRT renders subs as a SubRip document.
func WriteSRT(w io.Writer, subs *Subtitles) error {
	for i, c := range subs.Cues {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTimestamp(c.Start), formatSRTTimestamp(c.End), c.Payload); err != nil {
			return err
		}
	}
	return nil
}
