package workspace

import "fmt"

// FieldType is the host's integer field kind. Codes are persisted verbatim.
type FieldType int

const (
	FieldTypeText         FieldType = 1
	FieldTypeNumber       FieldType = 2
	FieldTypeSingleSelect FieldType = 3
	FieldTypeMultiSelect  FieldType = 4
	FieldTypeDateTime     FieldType = 5
	FieldTypeCheckbox     FieldType = 7
	FieldTypeUser         FieldType = 11
	FieldTypePhone        FieldType = 13
	FieldTypeURL          FieldType = 15
	FieldTypeAttachment   FieldType = 17
	FieldTypeSingleLink   FieldType = 18
	FieldTypeLookup       FieldType = 19
	FieldTypeFormula      FieldType = 20
	FieldTypeDuplexLink   FieldType = 21
	FieldTypeLocation     FieldType = 22
	FieldTypeGroupChat    FieldType = 23
	FieldTypeCreatedTime  FieldType = 1001
	FieldTypeModifiedTime FieldType = 1002
	FieldTypeCreatedUser  FieldType = 1003
	FieldTypeModifiedUser FieldType = 1004
	FieldTypeAutoNumber   FieldType = 1005
	FieldTypeBarcode      FieldType = 99001
	FieldTypeProgress     FieldType = 99002
	FieldTypeCurrency     FieldType = 99003
	FieldTypeRating       FieldType = 99004
	FieldTypeEmail        FieldType = 99005
)

var fieldTypeNames = map[FieldType]string{
	FieldTypeText:         "Text",
	FieldTypeNumber:       "Number",
	FieldTypeSingleSelect: "SingleSelect",
	FieldTypeMultiSelect:  "MultiSelect",
	FieldTypeDateTime:     "DateTime",
	FieldTypeCheckbox:     "Checkbox",
	FieldTypeUser:         "User",
	FieldTypePhone:        "Phone",
	FieldTypeURL:          "Url",
	FieldTypeAttachment:   "Attachment",
	FieldTypeSingleLink:   "SingleLink",
	FieldTypeLookup:       "Lookup",
	FieldTypeFormula:      "Formula",
	FieldTypeDuplexLink:   "DuplexLink",
	FieldTypeLocation:     "Location",
	FieldTypeGroupChat:    "GroupChat",
	FieldTypeCreatedTime:  "CreatedTime",
	FieldTypeModifiedTime: "ModifiedTime",
	FieldTypeCreatedUser:  "CreatedUser",
	FieldTypeModifiedUser: "ModifiedUser",
	FieldTypeAutoNumber:   "AutoNumber",
	FieldTypeBarcode:      "Barcode",
	FieldTypeProgress:     "Progress",
	FieldTypeCurrency:     "Currency",
	FieldTypeRating:       "Rating",
	FieldTypeEmail:        "Email",
}

// Blocked types are system managed and cannot be authored through the
// creation API.
var blockedFieldTypes = map[FieldType]bool{
	FieldTypeCreatedTime:  true,
	FieldTypeModifiedTime: true,
	FieldTypeCreatedUser:  true,
	FieldTypeModifiedUser: true,
	FieldTypeAutoNumber:   true,
}

// Non-portable types need cross-table or computed context that a structural
// snapshot does not carry.
var nonPortableFieldTypes = map[FieldType]bool{
	FieldTypeLookup:     true,
	FieldTypeSingleLink: true,
	FieldTypeDuplexLink: true,
	FieldTypeFormula:    true,
	FieldTypeBarcode:    true,
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Known reports whether the host recognizes the code at all.
func (t FieldType) Known() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

func (t FieldType) Blocked() bool {
	return blockedFieldTypes[t]
}

func (t FieldType) NonPortable() bool {
	return nonPortableFieldTypes[t]
}

// Authorable reports whether a field of this type can be created directly.
func (t FieldType) Authorable() bool {
	return t.Known() && !t.Blocked()
}
