// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"errors"
	"testing"

	"github.com/saferwall/dex/dextest"
)

// buildAnnotatedImage synthesizes one class exercising every annotation
// attachment point.
func buildAnnotatedImage() *dextest.Image {
	marker := func(value string) []dextest.Annotation {
		return []dextest.Annotation{{
			Visibility: 0x01, // runtime
			Type:       "Lcom/example/Marker;",
			Elements: []dextest.AnnotationElement{
				{Name: "value", Value: dextest.Str(value)},
			},
		}}
	}

	b := dextest.NewBuilder()
	b.AddClass(dextest.Class{
		Descriptor:  "Lcom/example/Annotated;",
		AccessFlags: 0x1,
		SuperClass:  "Ljava/lang/Object;",
		Annotations: append(marker("class"), dextest.Annotation{
			Visibility: 0x02, // system
			Type:       "Ldalvik/annotation/Signature;",
			Elements: []dextest.AnnotationElement{
				{Name: "value", Value: dextest.Array{
					dextest.Str("Ljava/util/List<"),
					dextest.Str("Ljava/lang/String;"),
					dextest.Str(">;"),
				}},
			},
		}),
		StaticFields: []dextest.Field{
			{Type: "I", Name: "plain", AccessFlags: 0x9},
			{Type: "I", Name: "tagged", AccessFlags: 0x9,
				Annotations: marker("field")},
		},
		VirtualMethods: []dextest.Method{
			{Name: "run", ReturnType: "V",
				Params:      []string{"I", "Ljava/lang/String;"},
				AccessFlags: 0x1,
				Annotations: marker("method"),
				ParamAnnotations: [][]dextest.Annotation{
					nil,
					marker("param"),
				},
				Code: &dextest.Code{RegistersSize: 4, InsSize: 3,
					Insns: []uint16{0x000e}}},
		},
	})
	return b.Build()
}

// markerValue extracts the "value" element of the single Marker annotation
// in a set.
func markerValue(t *testing.T, file *File, set AnnotationSetItem) string {
	t.Helper()
	for i := range set {
		jtype, err := file.GetType(set[i].Annotation.TypeIdx)
		if err != nil {
			t.Fatalf("GetType failed, reason: %v", err)
		}
		if jtype.Descriptor != "Lcom/example/Marker;" {
			continue
		}
		element, err := set[i].Annotation.FindElement("value", file)
		if err != nil {
			t.Fatalf("FindElement failed, reason: %v", err)
		}
		if element == nil {
			t.Fatal("marker annotation has no value element")
		}
		s, ok := element.Value.(ValueString)
		if !ok {
			t.Fatalf("marker value assertion failed, got %v", element.Value)
		}
		return string(s)
	}
	t.Fatal("no marker annotation in set")
	return ""
}

func TestClassAnnotations(t *testing.T) {
	file := parseImage(t, buildAnnotatedImage(), nil)

	cls, err := file.FindClassByName("Lcom/example/Annotated;")
	if err != nil {
		t.Fatalf("FindClassByName failed, reason: %v", err)
	}
	if cls == nil {
		t.Fatal("FindClassByName returned no class")
	}

	if len(cls.Annotations) != 2 {
		t.Fatalf("class annotation count assertion failed, got %d, want 2",
			len(cls.Annotations))
	}
	if got := markerValue(t, file, cls.Annotations); got != "class" {
		t.Errorf("class marker assertion failed, got %q", got)
	}

	plain := cls.Field("plain")
	if plain == nil {
		t.Fatal("field lookup failed for plain")
	}
	if len(plain.Annotations) != 0 {
		t.Errorf("unannotated field assertion failed, got %d annotations",
			len(plain.Annotations))
	}
	tagged := cls.Field("tagged")
	if tagged == nil {
		t.Fatal("field lookup failed for tagged")
	}
	if got := markerValue(t, file, tagged.Annotations); got != "field" {
		t.Errorf("field marker assertion failed, got %q", got)
	}

	run := cls.Method("run")
	if run == nil {
		t.Fatal("method lookup failed for run")
	}
	if got := markerValue(t, file, run.Annotations); got != "method" {
		t.Errorf("method marker assertion failed, got %q", got)
	}
	if len(run.ParamAnnotations) != 2 {
		t.Fatalf("param annotation count assertion failed, got %d, want 2",
			len(run.ParamAnnotations))
	}
	if len(run.ParamAnnotations[0]) != 0 {
		t.Errorf("unannotated param assertion failed, got %d annotations",
			len(run.ParamAnnotations[0]))
	}
	if got := markerValue(t, file, run.ParamAnnotations[1]); got != "param" {
		t.Errorf("param marker assertion failed, got %q", got)
	}

	for _, item := range cls.Annotations {
		if item.Visibility != VisibilityRuntime &&
			item.Visibility != VisibilitySystem {
			t.Errorf("visibility assertion failed, got %v", item.Visibility)
		}
	}
}

func TestSignature(t *testing.T) {
	file := parseImage(t, buildAnnotatedImage(), nil)

	cls, err := file.FindClassByName("Lcom/example/Annotated;")
	if err != nil || cls == nil {
		t.Fatalf("FindClassByName failed, reason: %v", err)
	}

	signature, ok := file.Signature(cls.Annotations)
	if !ok {
		t.Fatal("Signature found nothing")
	}
	want := "Ljava/util/List<Ljava/lang/String;>;"
	if signature != want {
		t.Errorf("signature assertion failed, got %q, want %q", signature, want)
	}

	// A set without the well-known annotation yields nothing.
	run := cls.Method("run")
	if run == nil {
		t.Fatal("method lookup failed")
	}
	if got, ok := file.Signature(run.Annotations); ok {
		t.Errorf("absent signature assertion failed, got %q", got)
	}
}

func TestAnnotationItemBadVisibility(t *testing.T) {
	b := dextest.NewBuilder()
	b.AddClass(dextest.Class{
		Descriptor:  "Lcom/example/A;",
		AccessFlags: 0x1,
		SuperClass:  "Ljava/lang/Object;",
	})
	// visibility 0x05, type_idx 0, no elements
	b.AddRaw("badvis", []byte{0x05, 0x00, 0x00})
	img := b.Build()
	file := parseImage(t, img, nil)

	_, err := file.GetAnnotationItem(img.RawOffsets["badvis"])
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindInvalidID {
		t.Fatalf("bad visibility assertion failed, got %v", err)
	}
	if dexErr.What != "annotation visibility" {
		t.Errorf("error detail assertion failed, got %q", dexErr.What)
	}
}

func TestAnnotationOffsetValidation(t *testing.T) {
	file := parseImage(t, buildAnnotatedImage(), nil)

	set, err := file.GetAnnotationSetItem(0)
	if err != nil || len(set) != 0 {
		t.Errorf("zero set offset assertion failed, got %v, %v", set, err)
	}
	list, err := file.GetAnnotationSetRefList(0)
	if err != nil || len(list) != 0 {
		t.Errorf("zero ref list offset assertion failed, got %v, %v", list, err)
	}
	dir, err := file.GetAnnotationsDirectoryItem(0)
	if err != nil || len(dir.ClassAnnotations) != 0 ||
		len(dir.FieldAnnotations) != 0 {
		t.Errorf("zero directory offset assertion failed, got %+v, %v", dir, err)
	}

	var dexErr *Error
	_, err = file.GetAnnotationItem(file.Header.DataOff - 1)
	if !errors.As(err, &dexErr) || dexErr.Kind != KindBadOffset {
		t.Errorf("annotation item offset assertion failed, got %v", err)
	}
	_, err = file.GetAnnotationsDirectoryItem(uint32(len(file.data)) + 8)
	if !errors.As(err, &dexErr) || dexErr.Kind != KindBadOffset {
		t.Errorf("directory offset assertion failed, got %v", err)
	}
}

func TestVisibilityString(t *testing.T) {
	tests := []struct {
		in  Visibility
		out string
	}{
		{VisibilityBuild, "build"},
		{VisibilityRuntime, "runtime"},
		{VisibilitySystem, "system"},
		{Visibility(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.out {
			t.Errorf("Visibility(%d).String() assertion failed, got %q, want %q",
				tt.in, got, tt.out)
		}
	}
}
