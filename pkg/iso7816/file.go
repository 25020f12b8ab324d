package iso7816

import (
	"fmt"

	"github.com/gregLibert/card-access/pkg/tlv"
)

// PathType selects the SELECT FILE addressing mode (ISO 7816-4, P1).
type PathType int

const (
	// PathTypeFileID addresses an EF or DF by its two-byte identifier.
	PathTypeFileID PathType = iota
	// PathTypeDFName addresses a DF by its application name (AID).
	PathTypeDFName
	// PathTypeAbsolute addresses a file by path from the MF.
	PathTypeAbsolute
	// PathTypeFromCurrent addresses a file by path from the current DF.
	PathTypeFromCurrent
	// PathTypeParent selects the parent DF of the current DF.
	PathTypeParent
)

// Path locates a file on the card.
type Path struct {
	Type  PathType
	Value []byte
}

// PathFromFileID builds a file-id path.
func PathFromFileID(id uint16) Path {
	return Path{Type: PathTypeFileID, Value: []byte{byte(id >> 8), byte(id)}}
}

// PathMF is the absolute path of the master file.
func PathMF() Path {
	return Path{Type: PathTypeAbsolute, Value: []byte{0x3F, 0x00}}
}

// Append returns a copy of p extended by the two-byte identifier of a child.
func (p Path) Append(id uint16) Path {
	v := make([]byte, 0, len(p.Value)+2)
	v = append(v, p.Value...)
	v = append(v, byte(id>>8), byte(id))
	return Path{Type: p.Type, Value: v}
}

// Clone returns a deep copy of the path.
func (p Path) Clone() Path {
	return Path{Type: p.Type, Value: append([]byte(nil), p.Value...)}
}

// Equal reports whether two paths address the same file the same way.
func (p Path) Equal(o Path) bool {
	if p.Type != o.Type || len(p.Value) != len(o.Value) {
		return false
	}
	for i := range p.Value {
		if p.Value[i] != o.Value[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	return fmt.Sprintf("%X", p.Value)
}

// FileType categorizes a file per the FCI descriptor byte (tag 82).
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeWorkingEF
	FileTypeInternalEF
	FileTypeDF
)

// EFStructure is the elementary-file structure, low three bits of tag 82.
type EFStructure byte

const (
	StructureUnknown      EFStructure = 0x00
	StructureTransparent  EFStructure = 0x01
	StructureLinearFixed  EFStructure = 0x02
	StructureLinearFixTLV EFStructure = 0x03
	StructureLinearVar    EFStructure = 0x04
	StructureLinearVarTLV EFStructure = 0x05
	StructureCyclic       EFStructure = 0x06
	StructureCyclicTLV    EFStructure = 0x07
)

// FileOperation names an action subject to access control on a file.
type FileOperation int

const (
	OpSelect FileOperation = iota
	OpRead
	OpUpdate
	OpWrite
	OpErase
	OpCreate
	OpDelete
	OpRehabilitate
	OpInvalidate
	OpCrypto

	numFileOperations
)

// AccessMethod identifies how a requirement in an ACL entry is satisfied.
type AccessMethod int

const (
	// AccessCHV requires card holder verification against a reference.
	AccessCHV AccessMethod = iota
	// AccessTerminal requires terminal authentication.
	AccessTerminal
	// AccessSecureMessaging requires a secure messaging session.
	AccessSecureMessaging
	// AccessExternalAuth requires EXTERNAL AUTHENTICATE with a key.
	AccessExternalAuth
)

// KeyRefNone marks an ACL entry whose key reference is not specified.
const KeyRefNone = -1

// ACLEntry is one way of satisfying an access condition.
type ACLEntry struct {
	Method AccessMethod
	KeyRef int
}

// ACLState tags the overall state of an access condition, replacing the
// classic convention of sentinel pointer values.
type ACLState int

const (
	// ACLUnknown means the condition has not been learned from the card.
	ACLUnknown ACLState = iota
	// ACLFree means the operation is always allowed.
	ACLFree
	// ACLNever means the operation is never allowed.
	ACLNever
	// ACLByEntry means any one of Entries satisfies the condition.
	ACLByEntry
)

// ACL is the access condition for one file operation.
type ACL struct {
	State   ACLState
	Entries []ACLEntry
}

// Add merges a key-referenced requirement into the condition. A condition
// pinned to Never stays Never; Unknown and Free are replaced by the entry
// list; an entry list grows by one alternative.
func (a *ACL) Add(e ACLEntry) {
	if a.State == ACLNever {
		return
	}
	if a.State != ACLByEntry {
		a.Entries = nil
	}
	a.State = ACLByEntry
	a.Entries = append(a.Entries, e)
}

// Clone returns a deep copy of the condition.
func (a ACL) Clone() ACL {
	return ACL{State: a.State, Entries: append([]ACLEntry(nil), a.Entries...)}
}

const fileDescriptorMagic = 0x14426950

// FileDescriptor carries the metadata of a card file as learned from (or
// destined for) File Control Information. Build one with NewFileDescriptor;
// a zero-value descriptor rejects ACL mutation.
type FileDescriptor struct {
	magic uint32

	Path      Path
	ID        uint16
	Type      FileType
	Structure EFStructure
	Shareable bool

	// Size is the data size (tag 80). TotalSize is the total allocated size
	// including structural overhead (tag 81).
	Size      int
	TotalSize int

	// Name is the DF name (tag 84), up to 16 bytes. It is decoded for the
	// caller's benefit and never emitted back when constructing FCI.
	Name []byte

	// PropAttr holds proprietary attributes (tag 85 or template A5).
	// SecAttr holds security attributes (tag 86), opaque at this layer.
	PropAttr []byte
	SecAttr  []byte

	acl [numFileOperations]ACL
}

// NewFileDescriptor returns an empty, mutable descriptor.
func NewFileDescriptor() *FileDescriptor {
	return &FileDescriptor{magic: fileDescriptorMagic}
}

// Valid reports whether the descriptor was produced by NewFileDescriptor.
func (f *FileDescriptor) Valid() bool {
	return f != nil && f.magic == fileDescriptorMagic
}

func (f *FileDescriptor) mustValid() {
	if !f.Valid() {
		panic("iso7816: file descriptor not built with NewFileDescriptor")
	}
}

// ACLFor returns a copy of the access condition for op.
func (f *FileDescriptor) ACLFor(op FileOperation) ACL {
	f.mustValid()
	return f.acl[op].Clone()
}

// AddACLEntry merges a key-referenced requirement into op's condition.
func (f *FileDescriptor) AddACLEntry(op FileOperation, method AccessMethod, keyRef int) {
	f.mustValid()
	f.acl[op].Add(ACLEntry{Method: method, KeyRef: keyRef})
}

// SetACLFree marks op as always allowed.
func (f *FileDescriptor) SetACLFree(op FileOperation) {
	f.mustValid()
	f.acl[op] = ACL{State: ACLFree}
}

// SetACLNever marks op as never allowed. Subsequent Add calls are ignored.
func (f *FileDescriptor) SetACLNever(op FileOperation) {
	f.mustValid()
	f.acl[op] = ACL{State: ACLNever}
}

// ClearACL resets op's condition to unknown.
func (f *FileDescriptor) ClearACL(op FileOperation) {
	f.mustValid()
	f.acl[op] = ACL{}
}

// Clone returns a deep copy of the descriptor.
func (f *FileDescriptor) Clone() *FileDescriptor {
	f.mustValid()
	c := NewFileDescriptor()
	c.Path = f.Path.Clone()
	c.ID = f.ID
	c.Type = f.Type
	c.Structure = f.Structure
	c.Shareable = f.Shareable
	c.Size = f.Size
	c.TotalSize = f.TotalSize
	c.Name = append([]byte(nil), f.Name...)
	c.PropAttr = append([]byte(nil), f.PropAttr...)
	c.SecAttr = append([]byte(nil), f.SecAttr...)
	for op := FileOperation(0); op < numFileOperations; op++ {
		c.acl[op] = f.acl[op].Clone()
	}
	return c
}

// PrintableName renders the DF name with unprintable bytes as '?'.
func (f *FileDescriptor) PrintableName() string {
	return tlv.MakeSafeASCII(f.Name)
}
