package matroska

// ElementID is an EBML element identifier, marker bit included when read as
// an ID but always compared here in its canonical (marker-included) form,
// matching how the values are written in the Matroska specification.
type ElementID uint32

const (
	ElementNone ElementID = 0

	ElementEbml    ElementID = 0x1A45DFA3
	ElementSegment ElementID = 0x18538067

	ElementSeekHead ElementID = 0x114D9B74
	ElementSeek     ElementID = 0x4DBB
	ElementSeekID   ElementID = 0x53AB
	ElementSeekPos  ElementID = 0x53AC

	ElementInfo          ElementID = 0x1549A966
	ElementTimecodeScale ElementID = 0x2AD7B1
	ElementDuration      ElementID = 0x4489

	ElementTracks      ElementID = 0x1654AE6B
	ElementTrackEntry  ElementID = 0xAE
	ElementTrackNumber ElementID = 0xD7
	ElementTrackType   ElementID = 0x83
	ElementFlagDefault ElementID = 0x88
	ElementFlagForced  ElementID = 0x55AA

	ElementDefaultDuration      ElementID = 0x23E383
	ElementName                 ElementID = 0x536E
	ElementLanguage             ElementID = 0x22B59C
	ElementLanguageBCP47        ElementID = 0x22B59D
	ElementCodecID              ElementID = 0x86
	ElementCodecPrivate         ElementID = 0x63A2
	ElementContentEncodings     ElementID = 0x6D80
	ElementContentEncoding      ElementID = 0x6240
	ElementContentEncodingOrder ElementID = 0x5031
	ElementContentEncodingScope ElementID = 0x5032
	ElementContentEncodingType  ElementID = 0x5033
	ElementContentCompression   ElementID = 0x5034
	ElementContentCompAlgo      ElementID = 0x4254
	ElementContentCompSettings  ElementID = 0x4255

	ElementCluster       ElementID = 0x1F43B675
	ElementTimecode      ElementID = 0xE7
	ElementSimpleBlock   ElementID = 0xA3
	ElementBlockGroup    ElementID = 0xA0
	ElementBlock         ElementID = 0xA1
	ElementBlockDuration ElementID = 0x9B
	ElementBlockAdditions ElementID = 0x75A1
	ElementBlockMore      ElementID = 0xA6
	ElementBlockAdditional ElementID = 0xA5

	ElementAttachments  ElementID = 0x1941A469
	ElementAttachedFile ElementID = 0x61A7
	ElementFileDescription ElementID = 0x467E
	ElementFileName     ElementID = 0x466E
	ElementFileMimeType ElementID = 0x4660
	ElementFileData     ElementID = 0x465C
	ElementFileUID      ElementID = 0x46AE

	ElementCues              ElementID = 0x1C53BB6B
	ElementCuePoint          ElementID = 0xBB
	ElementCueTime           ElementID = 0xB3
	ElementCueTrackPositions ElementID = 0xB7
	ElementCueTrack          ElementID = 0xF7
	ElementCueClusterPos     ElementID = 0xF1
	ElementCueRelativePos    ElementID = 0xF0

	ElementChapters ElementID = 0x1043A770
	ElementTags     ElementID = 0x1254C367
)

// TrackTypeSubtitle is the TrackType value Matroska assigns to text subtitle
// tracks.
const TrackTypeSubtitle = 17

// segmentTopLevelIDs lists the element IDs that can appear as direct
// children of Segment. The linear cluster scan treats any of these as the
// end sentinel for an unknown-size Cluster.
var segmentTopLevelIDs = map[ElementID]bool{
	ElementSeekHead:    true,
	ElementInfo:        true,
	ElementTracks:      true,
	ElementAttachments: true,
	ElementCues:        true,
	ElementChapters:    true,
	ElementTags:        true,
	ElementCluster:     true,
}

func isSegmentTopLevelID(id ElementID) bool {
	return segmentTopLevelIDs[id]
}
