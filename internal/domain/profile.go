package domain

import "slices"

// Values of UserProfile.HasChild.
const (
	HasChildYes = "유"
	HasChildNo  = "무"
)

// Values of Child.Gender.
const (
	GenderMale   = "남"
	GenderFemale = "여"
)

// Districts is the fixed set of selectable regions.
var Districts = []string{
	"강남구", "강동구", "강북구", "강서구", "관악구", "광진구",
	"구로구", "금천구", "노원구", "도봉구", "동대문구", "동작구",
	"마포구", "서대문구", "서초구", "성동구", "성북구", "송파구",
	"양천구", "영등포구", "용산구", "은평구", "종로구", "중구", "중랑구",
}

// AssetRanges is the fixed set of asset brackets.
var AssetRanges = []string{"1억 미만", "1~2억", "2~3억", "3~5억", "5억 이상"}

// Option sets for the extended profile attributes.
var (
	IncomeRanges = []string{"중위소득 50% 이하", "중위소득 50~100%", "중위소득 100~150%", "중위소득 150% 초과"}
	FamilyTypes  = []string{"일반가정", "한부모가정", "다자녀가정", "다문화가정", "조손가정"}
	YesNo        = []string{"예", "아니오"}
	JobStatuses  = []string{"직장인", "자영업", "구직중", "육아휴직", "무직"}
	HousingTypes = []string{"자가", "전세", "월세", "공공임대", "기타"}
)

// Child is one child entry of a profile.
type Child struct {
	Gender    string `json:"gender"`
	Birthdate string `json:"birthdate"`
}

// IsEmpty reports whether neither field was filled in.
func (c Child) IsEmpty() bool {
	return c.Gender == "" && c.Birthdate == ""
}

// UserProfile holds the policy-relevant attributes of the person using a
// device. The JSON shape matches what the backend expects as user_profile.
type UserProfile struct {
	Region        string  `json:"region"`
	HasChild      string  `json:"hasChild"`
	Children      []Child `json:"children"`
	Asset         string  `json:"asset"`
	Income        string  `json:"income,omitempty"`
	FamilyType    string  `json:"familyType,omitempty"`
	HasDisability string  `json:"hasDisability,omitempty"`
	IsPregnant    string  `json:"isPregnant,omitempty"`
	JobStatus     string  `json:"jobStatus,omitempty"`
	HousingType   string  `json:"housingType,omitempty"`
}

// IsEmpty reports whether nothing meaningful has been registered.
func (p UserProfile) IsEmpty() bool {
	return p.Region == "" && p.HasChild == "" && p.Asset == "" && len(p.Children) == 0
}

// SetHasChild updates HasChild. Switching to "무" resets the children to a
// single empty placeholder row.
func (p *UserProfile) SetHasChild(v string) {
	p.HasChild = v
	if v == HasChildNo {
		p.Children = []Child{{}}
	}
}

// AddChild appends an empty child row.
func (p *UserProfile) AddChild() {
	p.Children = append(p.Children, Child{})
}

// RemoveChild removes the child at index i. The last remaining row is
// cleared instead of removed.
func (p *UserProfile) RemoveChild(i int) {
	if i < 0 || i >= len(p.Children) {
		return
	}
	if len(p.Children) == 1 {
		p.Children = []Child{{}}
		return
	}
	p.Children = slices.Delete(slices.Clone(p.Children), i, i+1)
}

// ForEditing returns a copy with editor defaults applied: "무" when HasChild
// is unset and at least one child row.
func (p UserProfile) ForEditing() UserProfile {
	out := p.Clone()
	if out.HasChild == "" {
		out.HasChild = HasChildNo
	}
	if len(out.Children) == 0 {
		out.Children = []Child{{}}
	}
	return out
}

// Clone returns a deep copy.
func (p UserProfile) Clone() UserProfile {
	out := p
	if p.Children != nil {
		out.Children = slices.Clone(p.Children)
	}
	return out
}

// IsValidRegion reports whether r is empty or one of Districts.
func IsValidRegion(r string) bool {
	return r == "" || slices.Contains(Districts, r)
}

// IsValidAsset reports whether a is empty or one of AssetRanges.
func IsValidAsset(a string) bool {
	return a == "" || slices.Contains(AssetRanges, a)
}

// IsValidOption reports whether v is empty or one of options.
func IsValidOption(options []string, v string) bool {
	return v == "" || slices.Contains(options, v)
}
