package winnow_test

import (
	"strings"
	"testing"

	"github.com/pthm/winnow"
)

func documentFields() []winnow.FieldDef {
	return []winnow.FieldDef{
		winnow.Attribute("id", "Integer"),
		winnow.Attribute("owner_id", "Integer"),
		winnow.Related("folder", winnow.Relation{
			Kind:       winnow.RelationOne,
			OtherType:  "Folder",
			MyField:    "folder_id",
			OtherField: "id",
		}),
	}
}

func folderFields() []winnow.FieldDef {
	return []winnow.FieldDef{
		winnow.Attribute("id", "Integer"),
		winnow.Attribute("owner_id", "Integer"),
	}
}

func TestRegistryBuilder_Build(t *testing.T) {
	reg, err := winnow.NewRegistryBuilder().
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		RegisterType("Document", documentFields(), winnow.Capabilities{}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := reg.Entry("Document")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Tag != "Document" {
		t.Errorf("expected Document entry, got %q", entry.Tag)
	}
	f, ok := entry.Field("folder")
	if !ok {
		t.Fatal("folder field missing")
	}
	if f.Relation == nil || f.Relation.OtherType != "Folder" {
		t.Errorf("folder field should be a relation to Folder, got %+v", f)
	}

	tags := reg.Tags()
	if len(tags) != 2 || tags[0] != "Folder" || tags[1] != "Document" {
		t.Errorf("expected registration order [Folder Document], got %v", tags)
	}
}

func TestRegistryBuilder_ForwardReference(t *testing.T) {
	// Document registered before Folder; the relation resolves at Build.
	_, err := winnow.NewRegistryBuilder().
		RegisterType("Document", documentFields(), winnow.Capabilities{}).
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		Build()
	if err != nil {
		t.Fatalf("forward reference should be allowed: %v", err)
	}
}

func TestRegistryBuilder_UnknownRelationTarget(t *testing.T) {
	_, err := winnow.NewRegistryBuilder().
		RegisterType("Document", documentFields(), winnow.Capabilities{}).
		Build()
	if err == nil {
		t.Fatal("expected error for relation to unregistered type")
	}
	if !strings.Contains(err.Error(), "Folder") {
		t.Errorf("error should name the missing type, got: %v", err)
	}
}

func TestRegistryBuilder_DuplicateField(t *testing.T) {
	fields := []winnow.FieldDef{
		winnow.Attribute("id", "Integer"),
		winnow.Attribute("id", "String"),
	}
	_, err := winnow.NewRegistryBuilder().
		RegisterType("Thing", fields, winnow.Capabilities{}).
		Build()
	if err == nil {
		t.Fatal("expected error for duplicate field name")
	}
	if !strings.Contains(err.Error(), "twice") {
		t.Errorf("error should mention the duplicate, got: %v", err)
	}
}

func TestRegistryBuilder_DuplicateTag(t *testing.T) {
	_, err := winnow.NewRegistryBuilder().
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		Build()
	if err == nil {
		t.Fatal("expected error for duplicate type tag")
	}
}

func TestRegistry_EntryUnregistered(t *testing.T) {
	reg, err := winnow.NewRegistryBuilder().
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = reg.Entry("Missing")
	if err == nil {
		t.Fatal("expected error for unregistered type")
	}
	if !winnow.IsUnregisteredTypeErr(err) {
		t.Errorf("expected IsUnregisteredTypeErr to return true, got: %v", err)
	}
}

func TestRegistry_Serialize(t *testing.T) {
	reg, err := winnow.NewRegistryBuilder().
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		RegisterType("Document", documentFields(), winnow.Capabilities{}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ser := reg.Serialize()
	if len(ser) != 2 {
		t.Fatalf("expected 2 serialized types, got %d", len(ser))
	}

	doc := ser["Document"]
	if doc.Tag != "Document" {
		t.Errorf("expected tag Document, got %q", doc.Tag)
	}
	if len(doc.FieldOrder) != 3 || doc.FieldOrder[2] != "folder" {
		t.Errorf("field order should match declaration order, got %v", doc.FieldOrder)
	}
	folder := doc.Fields["folder"]
	if folder.Relation == nil {
		t.Fatal("folder field should serialize its relation")
	}
	if folder.Relation.MyField != "folder_id" || folder.Relation.OtherField != "id" {
		t.Errorf("relation join keys lost in serialization: %+v", folder.Relation)
	}

	tags := ser.Tags()
	if len(tags) != 2 || tags[0] != "Document" || tags[1] != "Folder" {
		t.Errorf("serialization tags should be lexical, got %v", tags)
	}
}

func TestRegistry_SerializeSubset(t *testing.T) {
	reg, err := winnow.NewRegistryBuilder().
		RegisterType("Folder", folderFields(), winnow.Capabilities{}).
		RegisterType("Document", documentFields(), winnow.Capabilities{}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ser := reg.Serialize("Folder")
	if len(ser) != 1 {
		t.Fatalf("expected 1 serialized type, got %d", len(ser))
	}
	if _, ok := ser["Document"]; ok {
		t.Error("Document should not be in the subset serialization")
	}
}
