// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/saferwall/dex/dextest"
)

// writeAPK zips the given entries into a fresh archive under dir.
func writeAPK(t *testing.T, dir string, entries map[string][]byte) string {
	t.Helper()
	name := filepath.Join(dir, "app.apk")
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("Create failed, reason: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for entryName, data := range entries {
		method := zip.Deflate
		if entryName == "classes2.dex" {
			method = zip.Store
		}
		entry, err := w.CreateHeader(&zip.FileHeader{
			Name:   entryName,
			Method: method,
		})
		if err != nil {
			t.Fatalf("CreateHeader failed, reason: %v", err)
		}
		if _, err := entry.Write(data); err != nil {
			t.Fatalf("Write failed, reason: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed, reason: %v", err)
	}
	return name
}

func TestOpenAPK(t *testing.T) {
	primary := buildLauncherImage()

	b := dextest.NewBuilder()
	b.AddClass(dextest.Class{
		Descriptor:  "Lcom/example/Secondary;",
		AccessFlags: 0x1,
		SuperClass:  "Ljava/lang/Object;",
	})
	secondary := b.Build()

	// writeAPK ranges over a map, so archive order is unspecified; OpenAPK
	// restores multidex order.
	name := writeAPK(t, t.TempDir(), map[string][]byte{
		"classes2.dex":         secondary.Bytes,
		"classes.dex":          primary.Bytes,
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
	})

	files, err := OpenAPK(name, nil)
	if err != nil {
		t.Fatalf("OpenAPK failed, reason: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("dex count assertion failed, got %d, want 2", len(files))
	}
	if files[0].Header.ClassDefsSize != 4 {
		t.Errorf("primary dex assertion failed, got %d classes",
			files[0].Header.ClassDefsSize)
	}
	if files[1].Header.ClassDefsSize != 1 {
		t.Errorf("secondary dex assertion failed, got %d classes",
			files[1].Header.ClassDefsSize)
	}
	cls, err := files[1].FindClassByName("Lcom/example/Secondary;")
	if err != nil || cls == nil {
		t.Errorf("secondary class lookup failed, reason: %v", err)
	}
}

func TestOpenAPKWithoutDex(t *testing.T) {
	name := writeAPK(t, t.TempDir(), map[string][]byte{
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
	})

	_, err := OpenAPK(name, nil)
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
		t.Fatalf("missing dex assertion failed, got %v", err)
	}
}

func TestOpenAPKMissingFile(t *testing.T) {
	_, err := OpenAPK(filepath.Join(t.TempDir(), "nope.apk"), nil)
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindIO {
		t.Fatalf("missing archive assertion failed, got %v", err)
	}
}
