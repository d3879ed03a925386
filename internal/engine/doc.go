// Package engine provides interchangeable speech-to-text backends.
// A backend converts one audio window into text with a single blocking call;
// the preferred backend is selected once at startup with an optional
// fallback, never per call.
package engine
