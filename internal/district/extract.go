package district

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Attributes are the identifying properties of an administrative area.
type Attributes struct {
	Code        string `json:"sig_cd"`
	EnglishName string `json:"sig_eng_nm"`
	FullName    string `json:"full_nm"`
	KoreanName  string `json:"sig_kor_nm"`
}

// Property aliases, tried in order. Upstream datasets are inconsistent about key casing.
var (
	codeKeys    = []string{"sig_cd", "SIG_CD", "sigCd", "SigCd"}
	engNameKeys = []string{"sig_eng_nm", "SIG_ENG_NM", "sigEngNm", "SigEngNm"}
	fullKeys    = []string{"full_nm", "FULL_NM", "fullNm", "FullNm"}
	korNameKeys = []string{"sig_kor_nm", "SIG_KOR_NM", "sigKorNm", "SigKorNm"}

	provinceCodeKeys    = []string{"ctprvn_cd", "CTPRVN_CD", "ctprvnCd", "CtprvnCd"}
	provinceEngNameKeys = []string{"ctp_eng_nm", "CTP_ENG_NM", "ctpEngNm", "CtpEngNm"}
	provinceKorNameKeys = []string{"ctp_kor_nm", "CTP_KOR_NM", "ctpKorNm", "CtpKorNm"}
)

// Extract reads the district attributes from the first feature of fc.
// It returns ErrMissingDistrictCode when there is no feature or no code.
func Extract(fc *geojson.FeatureCollection) (Attributes, error) {
	props, ok := firstProperties(fc)
	if !ok {
		return Attributes{}, ErrMissingDistrictCode
	}
	attrs := Attributes{
		Code:        pick(props, codeKeys),
		EnglishName: pick(props, engNameKeys),
		FullName:    pick(props, fullKeys),
		KoreanName:  pick(props, korNameKeys),
	}
	if attrs.Code == "" {
		return Attributes{}, ErrMissingDistrictCode
	}
	return attrs, nil
}

// ExtractProvince is Extract for the province (si/do) dataset.
// The Korean name doubles as the full name, matching how district full names begin.
func ExtractProvince(fc *geojson.FeatureCollection) (Attributes, error) {
	props, ok := firstProperties(fc)
	if !ok {
		return Attributes{}, ErrMissingDistrictCode
	}
	attrs := Attributes{
		Code:        pick(props, provinceCodeKeys),
		EnglishName: pick(props, provinceEngNameKeys),
		KoreanName:  pick(props, provinceKorNameKeys),
	}
	attrs.FullName = attrs.KoreanName
	if attrs.Code == "" {
		return Attributes{}, ErrMissingDistrictCode
	}
	return attrs, nil
}

// ProvinceName returns the province part of a district full name ("서울특별시 종로구" -> "서울특별시").
func ProvinceName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func firstProperties(fc *geojson.FeatureCollection) (geojson.Properties, bool) {
	if fc == nil || len(fc.Features) == 0 || fc.Features[0] == nil {
		return nil, false
	}
	return fc.Features[0].Properties, true
}

func pick(props geojson.Properties, keys []string) string {
	for _, k := range keys {
		v, ok := props[k]
		if !ok || v == nil {
			continue
		}
		return stringify(v)
	}
	return ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}
