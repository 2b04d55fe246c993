package types

// CreateDisposition specifies the action to take depending on whether the
// target already exists.
// [MS-SMB2] Section 2.2.13
type CreateDisposition uint32

const (
	// FileSupersede replaces the file if it exists, creates it if not.
	FileSupersede CreateDisposition = 0x00000000

	// FileOpen opens the file if it exists, fails if not.
	FileOpen CreateDisposition = 0x00000001

	// FileCreate creates the file if it doesn't exist, fails if it does.
	FileCreate CreateDisposition = 0x00000002

	// FileOpenIf opens if the file exists, creates it if not.
	FileOpenIf CreateDisposition = 0x00000003

	// FileOverwrite overwrites if the file exists, fails if not.
	FileOverwrite CreateDisposition = 0x00000004

	// FileOverwriteIf overwrites if the file exists, creates it if not.
	FileOverwriteIf CreateDisposition = 0x00000005
)

// CreateAction indicates the action the server took.
// [MS-SMB2] Section 2.2.14
type CreateAction uint32

const (
	FileSuperseded  CreateAction = 0x00000000
	FileOpened      CreateAction = 0x00000001
	FileCreated     CreateAction = 0x00000002
	FileOverwritten CreateAction = 0x00000003
)

// ImpersonationLevel is the requested impersonation level in CREATE.
// [MS-SMB2] Section 2.2.13
type ImpersonationLevel uint32

const (
	ImpersonationAnonymous      ImpersonationLevel = 0x00000000
	ImpersonationIdentification ImpersonationLevel = 0x00000001
	ImpersonationImpersonation  ImpersonationLevel = 0x00000002
	ImpersonationDelegate       ImpersonationLevel = 0x00000003
)

// OplockLevel is the oplock requested in CREATE or carried in a break.
// [MS-SMB2] Section 2.2.13
type OplockLevel uint8

const (
	OplockLevelNone      OplockLevel = 0x00
	OplockLevelII        OplockLevel = 0x01
	OplockLevelExclusive OplockLevel = 0x08
	OplockLevelBatch     OplockLevel = 0x09
	OplockLevelLease     OplockLevel = 0xFF
)

// LeaseState is the lease state bitmask used in lease create contexts and
// lease break notifications.
// [MS-SMB2] Section 2.2.13.2.8
type LeaseState uint32

const (
	LeaseStateNone    LeaseState = 0x00
	LeaseStateRead    LeaseState = 0x01
	LeaseStateHandle  LeaseState = 0x02
	LeaseStateWrite   LeaseState = 0x04
)

// FileAttributes represents Windows file attributes.
// [MS-FSCC] Section 2.6
type FileAttributes uint32

const (
	FileAttributeReadonly          FileAttributes = 0x00000001
	FileAttributeHidden            FileAttributes = 0x00000002
	FileAttributeSystem            FileAttributes = 0x00000004
	FileAttributeDirectory         FileAttributes = 0x00000010
	FileAttributeArchive           FileAttributes = 0x00000020
	FileAttributeNormal            FileAttributes = 0x00000080
	FileAttributeTemporary         FileAttributes = 0x00000100
	FileAttributeSparseFile        FileAttributes = 0x00000200
	FileAttributeReparsePoint      FileAttributes = 0x00000400
	FileAttributeCompressed        FileAttributes = 0x00000800
	FileAttributeNotContentIndexed FileAttributes = 0x00002000
	FileAttributeEncrypted         FileAttributes = 0x00004000
)

// IsDirectory returns true if the attributes indicate a directory.
func (a FileAttributes) IsDirectory() bool {
	return a&FileAttributeDirectory != 0
}

// AccessMask specifies the type of access requested in CREATE. The bit
// layout is shared between files and directories; only the names differ
// (FileReadData vs. FileListDirectory and so on).
// [MS-SMB2] Section 2.2.13.1
type AccessMask uint32

const (
	FileReadData         AccessMask = 0x00000001
	FileWriteData        AccessMask = 0x00000002
	FileAppendData       AccessMask = 0x00000004
	FileReadEA           AccessMask = 0x00000008
	FileWriteEA          AccessMask = 0x00000010
	FileExecute          AccessMask = 0x00000020
	FileDeleteChild      AccessMask = 0x00000040
	FileReadAttributes   AccessMask = 0x00000080
	FileWriteAttributes  AccessMask = 0x00000100
	Delete               AccessMask = 0x00010000
	ReadControl          AccessMask = 0x00020000
	WriteDac             AccessMask = 0x00040000
	WriteOwner           AccessMask = 0x00080000
	Synchronize          AccessMask = 0x00100000
	AccessSystemSecurity AccessMask = 0x01000000
	MaximumAllowed       AccessMask = 0x02000000
	GenericAll           AccessMask = 0x10000000
	GenericExecute       AccessMask = 0x20000000
	GenericWrite         AccessMask = 0x40000000
	GenericRead          AccessMask = 0x80000000
)

// Directory-flavored names over the same bit positions.
// [MS-SMB2] Section 2.2.13.1.2
const (
	FileListDirectory AccessMask = 0x00000001
	FileAddFile       AccessMask = 0x00000002
	FileAddSubdir     AccessMask = 0x00000004
	FileTraverse      AccessMask = 0x00000020
)

// ShareAccess specifies how the open object may be shared.
// [MS-SMB2] Section 2.2.13
type ShareAccess uint32

const (
	FileShareRead   ShareAccess = 0x00000001
	FileShareWrite  ShareAccess = 0x00000002
	FileShareDelete ShareAccess = 0x00000004
)

// CreateOptions specifies options for file creation.
// [MS-SMB2] Section 2.2.13
type CreateOptions uint32

const (
	FileDirectoryFile           CreateOptions = 0x00000001
	FileWriteThrough            CreateOptions = 0x00000002
	FileSequentialOnly          CreateOptions = 0x00000004
	FileNoIntermediateBuffering CreateOptions = 0x00000008
	FileSynchronousIoAlert      CreateOptions = 0x00000010
	FileSynchronousIoNonalert   CreateOptions = 0x00000020
	FileNonDirectoryFile        CreateOptions = 0x00000040
	FileCompleteIfOplocked      CreateOptions = 0x00000100
	FileNoEaKnowledge           CreateOptions = 0x00000200
	FileRandomAccess            CreateOptions = 0x00000800
	FileDeleteOnClose           CreateOptions = 0x00001000
	FileOpenByFileId            CreateOptions = 0x00002000
	FileOpenForBackupIntent     CreateOptions = 0x00004000
	FileNoCompression           CreateOptions = 0x00008000
	FileOpenReparsePoint        CreateOptions = 0x00200000
	FileOpenNoRecall            CreateOptions = 0x00400000
)

// QueryDirectoryFlags controls directory enumeration behavior.
// [MS-SMB2] Section 2.2.33
type QueryDirectoryFlags uint8

const (
	RestartScans      QueryDirectoryFlags = 0x01
	ReturnSingleEntry QueryDirectoryFlags = 0x02
	IndexSpecified    QueryDirectoryFlags = 0x04
	Reopen            QueryDirectoryFlags = 0x10
)

// CloseFlags controls CLOSE behavior.
// [MS-SMB2] Section 2.2.15
type CloseFlags uint16

const (
	// ClosePostQueryAttrib requests final attributes in the CLOSE response.
	ClosePostQueryAttrib CloseFlags = 0x0001
)

// FileID is the server-assigned 16-byte handle identifying an opened object:
// an 8-byte persistent part followed by an 8-byte volatile part.
// [MS-SMB2] Section 2.2.14.1
type FileID [16]byte

// IsZero returns true for the all-zero file id.
func (id FileID) IsZero() bool {
	return id == FileID{}
}

// FileIDAll is the wildcard file id (all 0xFF) used in async notifications
// and in related compound operations.
var FileIDAll = FileID{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}
