package types

// InfoType selects the information family in QUERY_INFO/SET_INFO.
// [MS-SMB2] Section 2.2.37
type InfoType uint8

const (
	// InfoTypeFile queries or sets file information classes.
	InfoTypeFile InfoType = 0x01

	// InfoTypeFilesystem queries or sets filesystem information classes.
	InfoTypeFilesystem InfoType = 0x02

	// InfoTypeSecurity queries or sets security descriptors.
	InfoTypeSecurity InfoType = 0x03

	// InfoTypeQuota queries or sets quota information.
	InfoTypeQuota InfoType = 0x04
)

// FileInfoClass identifies a file information class.
// [MS-FSCC] Section 2.4
type FileInfoClass uint8

const (
	FileDirectoryInformationClass       FileInfoClass = 1
	FileFullDirectoryInformationClass   FileInfoClass = 2
	FileBothDirectoryInformationClass   FileInfoClass = 3
	FileBasicInformationClass           FileInfoClass = 4
	FileStandardInformationClass        FileInfoClass = 5
	FileInternalInformationClass        FileInfoClass = 6
	FileEaInformationClass              FileInfoClass = 7
	FileAccessInformationClass          FileInfoClass = 8
	FileNameInformationClass            FileInfoClass = 9
	FileRenameInformationClass          FileInfoClass = 10
	FileNamesInformationClass           FileInfoClass = 12
	FileDispositionInformationClass     FileInfoClass = 13
	FilePositionInformationClass        FileInfoClass = 14
	FileFullEaInformationClass          FileInfoClass = 15
	FileModeInformationClass            FileInfoClass = 16
	FileAlignmentInformationClass       FileInfoClass = 17
	FileAllInformationClass             FileInfoClass = 18
	FileAllocationInformationClass      FileInfoClass = 19
	FileEndOfFileInformationClass       FileInfoClass = 20
	FileStreamInformationClass          FileInfoClass = 22
	FileNetworkOpenInformationClass     FileInfoClass = 34
	FileAttributeTagInformationClass    FileInfoClass = 35
	FileIdBothDirectoryInformationClass FileInfoClass = 37
	FileIdFullDirectoryInformationClass FileInfoClass = 38
	FileDispositionInformationExClass   FileInfoClass = 64
)

// FsInfoClass identifies a filesystem information class.
// [MS-FSCC] Section 2.5
type FsInfoClass uint8

const (
	FileFsVolumeInformationClass    FsInfoClass = 1
	FileFsSizeInformationClass      FsInfoClass = 3
	FileFsDeviceInformationClass    FsInfoClass = 4
	FileFsAttributeInformationClass FsInfoClass = 5
	FileFsFullSizeInformationClass  FsInfoClass = 7
)

// AdditionalInfo selects security descriptor components in
// query/set security info.
// [MS-SMB2] Section 2.2.37
type AdditionalInfo uint32

const (
	OwnerSecurityInformation     AdditionalInfo = 0x00000001
	GroupSecurityInformation     AdditionalInfo = 0x00000002
	DaclSecurityInformation      AdditionalInfo = 0x00000004
	SaclSecurityInformation      AdditionalInfo = 0x00000008
	LabelSecurityInformation     AdditionalInfo = 0x00000010
	AttributeSecurityInformation AdditionalInfo = 0x00000020
)
