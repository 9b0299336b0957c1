package dex

// FuzzParse drives the parser against arbitrary bytes.
func FuzzParse(data []byte) int {
	f, err := NewBytes(data, &Options{SkipChecksumVerification: true})
	if err != nil {
		return 0
	}
	if err := f.Parse(); err != nil {
		return 0
	}
	ok := 1
	for _, err := range f.Classes() {
		if err != nil {
			ok = 0
		}
	}
	return ok
}
