// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cabac

// 各语法元素在上下文表中的起始下标
const (
	SaoMergeFlag              = 0
	SaoTypeIdx                = 1
	SplitCuFlag               = 2
	CuTransquantBypassFlag    = 5
	CuSkipFlag                = 6
	CuQpDeltaAbs              = 9
	PredModeFlag              = 12
	PartMode                  = 13
	PrevIntraLumaPredFlag     = 17
	IntraChromaPredMode       = 18
	MergeFlag                 = 20
	MergeIdx                  = 21
	InterPredIdc              = 22
	RefIdxL0                  = 27
	RefIdxL1                  = 29
	AbsMvdGreater0Flag        = 31
	AbsMvdGreater1Flag        = 33
	MvpLxFlag                 = 35
	RqtRootCbf                = 36
	SplitTransformFlag        = 37
	CbfLuma                   = 40
	CbfCbCr                   = 42
	TransformSkipFlag         = 47
	ExplicitRdpcmFlag         = 49
	ExplicitRdpcmDirFlag      = 51
	LastSigCoeffXPrefix       = 53
	LastSigCoeffYPrefix       = 71
	CodedSubBlockFlag         = 89
	SigCoeffFlag              = 93
	CoeffAbsLevelGreater1Flag = 137
	CoeffAbsLevelGreater2Flag = 161
	Log2ResScaleAbs           = 167
	ResScaleSignFlag          = 175
	CuChromaQpOffsetFlag      = 177
	CuChromaQpOffsetIdx       = 178

	NumContexts = 179
)

const cnu = 154

// initValues 按 initType 索引 (I, P, B)
var initValues = [3][NumContexts]uint8{
	{
		// SaoMergeFlag
		153,
		// SaoTypeIdx
		200,
		// SplitCuFlag
		139, 141, 157,
		// CuTransquantBypassFlag
		154,
		// CuSkipFlag
		cnu, cnu, cnu,
		// CuQpDeltaAbs
		154, 154, 154,
		// PredModeFlag
		cnu,
		// PartMode
		184, cnu, cnu, cnu,
		// PrevIntraLumaPredFlag
		184,
		// IntraChromaPredMode
		63, 139,
		// MergeFlag
		cnu,
		// MergeIdx
		cnu,
		// InterPredIdc
		cnu, cnu, cnu, cnu, cnu,
		// RefIdxL0
		cnu, cnu,
		// RefIdxL1
		cnu, cnu,
		// AbsMvdGreater0Flag
		cnu, cnu,
		// AbsMvdGreater1Flag
		cnu, cnu,
		// MvpLxFlag
		cnu,
		// RqtRootCbf
		cnu,
		// SplitTransformFlag
		153, 138, 138,
		// CbfLuma
		111, 141,
		// CbfCbCr
		94, 138, 182, 154, 154,
		// TransformSkipFlag
		139, 139,
		// ExplicitRdpcmFlag
		139, 139,
		// ExplicitRdpcmDirFlag
		139, 139,
		// LastSigCoeffXPrefix
		110, 110, 124, 125, 140, 153, 125, 127, 140, 109, 111, 143, 127, 111,
		79, 108, 123, 63,
		// LastSigCoeffYPrefix
		110, 110, 124, 125, 140, 153, 125, 127, 140, 109, 111, 143, 127, 111,
		79, 108, 123, 63,
		// CodedSubBlockFlag
		91, 171, 134, 141,
		// SigCoeffFlag
		111, 111, 125, 110, 110, 94, 124, 108, 124, 107, 125, 141, 179, 153,
		125, 107, 125, 141, 179, 153, 125, 107, 125, 141, 179, 153, 125, 140,
		139, 182, 182, 152, 136, 152, 136, 153, 136, 139, 111, 136, 139, 111,
		141, 111,
		// CoeffAbsLevelGreater1Flag
		140, 92, 137, 138, 140, 152, 138, 139, 153, 74, 149, 92, 139, 107,
		122, 152, 140, 179, 166, 182, 140, 227, 122, 197,
		// CoeffAbsLevelGreater2Flag
		138, 153, 136, 167, 152, 152,
		// Log2ResScaleAbs
		154, 154, 154, 154, 154, 154, 154, 154,
		// ResScaleSignFlag
		154, 154,
		// CuChromaQpOffsetFlag
		154,
		// CuChromaQpOffsetIdx
		154,
	},
	{
		// SaoMergeFlag
		153,
		// SaoTypeIdx
		185,
		// SplitCuFlag
		107, 139, 126,
		// CuTransquantBypassFlag
		154,
		// CuSkipFlag
		197, 185, 201,
		// CuQpDeltaAbs
		154, 154, 154,
		// PredModeFlag
		149,
		// PartMode
		cnu, 139, cnu, cnu,
		// PrevIntraLumaPredFlag
		154,
		// IntraChromaPredMode
		152, 139,
		// MergeFlag
		110,
		// MergeIdx
		122,
		// InterPredIdc
		95, 79, 63, 31, 31,
		// RefIdxL0
		153, 153,
		// RefIdxL1
		153, 153,
		// AbsMvdGreater0Flag
		140, 198,
		// AbsMvdGreater1Flag
		140, 198,
		// MvpLxFlag
		168,
		// RqtRootCbf
		79,
		// SplitTransformFlag
		124, 138, 94,
		// CbfLuma
		153, 111,
		// CbfCbCr
		149, 107, 167, 154, 154,
		// TransformSkipFlag
		139, 139,
		// ExplicitRdpcmFlag
		139, 139,
		// ExplicitRdpcmDirFlag
		139, 139,
		// LastSigCoeffXPrefix
		125, 110, 94, 110, 95, 79, 125, 111, 110, 78, 110, 111, 111, 95,
		94, 108, 123, 108,
		// LastSigCoeffYPrefix
		125, 110, 94, 110, 95, 79, 125, 111, 110, 78, 110, 111, 111, 95,
		94, 108, 123, 108,
		// CodedSubBlockFlag
		121, 140, 61, 154,
		// SigCoeffFlag
		155, 154, 139, 153, 139, 123, 123, 63, 153, 166, 183, 140, 136, 153,
		154, 166, 183, 140, 136, 153, 154, 166, 183, 140, 136, 153, 154, 170,
		153, 123, 123, 107, 121, 107, 121, 167, 151, 183, 140, 151, 183, 140,
		140, 140,
		// CoeffAbsLevelGreater1Flag
		154, 196, 196, 167, 154, 152, 167, 182, 182, 134, 149, 136, 153, 121,
		136, 137, 169, 194, 166, 167, 154, 167, 137, 182,
		// CoeffAbsLevelGreater2Flag
		107, 167, 91, 122, 107, 167,
		// Log2ResScaleAbs
		154, 154, 154, 154, 154, 154, 154, 154,
		// ResScaleSignFlag
		154, 154,
		// CuChromaQpOffsetFlag
		154,
		// CuChromaQpOffsetIdx
		154,
	},
	{
		// SaoMergeFlag
		153,
		// SaoTypeIdx
		160,
		// SplitCuFlag
		107, 139, 126,
		// CuTransquantBypassFlag
		154,
		// CuSkipFlag
		197, 185, 201,
		// CuQpDeltaAbs
		154, 154, 154,
		// PredModeFlag
		134,
		// PartMode
		cnu, 139, cnu, cnu,
		// PrevIntraLumaPredFlag
		183,
		// IntraChromaPredMode
		152, 139,
		// MergeFlag
		cnu,
		// MergeIdx
		137,
		// InterPredIdc
		95, 79, 63, 31, 31,
		// RefIdxL0
		153, 153,
		// RefIdxL1
		153, 153,
		// AbsMvdGreater0Flag
		169, 198,
		// AbsMvdGreater1Flag
		169, 198,
		// MvpLxFlag
		168,
		// RqtRootCbf
		79,
		// SplitTransformFlag
		224, 167, 122,
		// CbfLuma
		153, 111,
		// CbfCbCr
		149, 92, 167, 154, 154,
		// TransformSkipFlag
		139, 139,
		// ExplicitRdpcmFlag
		139, 139,
		// ExplicitRdpcmDirFlag
		139, 139,
		// LastSigCoeffXPrefix
		125, 110, 124, 110, 95, 94, 125, 111, 111, 79, 125, 126, 111, 111,
		79, 108, 123, 93,
		// LastSigCoeffYPrefix
		125, 110, 124, 110, 95, 94, 125, 111, 111, 79, 125, 126, 111, 111,
		79, 108, 123, 93,
		// CodedSubBlockFlag
		121, 140, 61, 154,
		// SigCoeffFlag
		170, 154, 139, 153, 139, 123, 123, 63, 124, 166, 183, 140, 136, 153,
		154, 166, 183, 140, 136, 153, 154, 166, 183, 140, 136, 153, 154, 170,
		153, 138, 138, 122, 121, 122, 121, 167, 151, 183, 140, 151, 183, 140,
		140, 140,
		// CoeffAbsLevelGreater1Flag
		154, 196, 167, 167, 154, 152, 167, 182, 182, 134, 149, 136, 153, 121,
		136, 122, 169, 208, 166, 167, 154, 152, 167, 182,
		// CoeffAbsLevelGreater2Flag
		107, 167, 91, 107, 107, 167,
		// Log2ResScaleAbs
		154, 154, 154, 154, 154, 154, 154, 154,
		// ResScaleSignFlag
		154, 154,
		// CuChromaQpOffsetFlag
		154,
		// CuChromaQpOffsetIdx
		154,
	},
}
