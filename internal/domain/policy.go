package domain

// PolicyStatus tags how a policy changed during the last backend sync.
type PolicyStatus string

const (
	PolicyStatusNew       PolicyStatus = "new"
	PolicyStatusUpdated   PolicyStatus = "updated"
	PolicyStatusUnchanged PolicyStatus = "unchanged"
)

// PolicyRef is a government policy record as returned by the backend.
// It is read-only on this side.
type PolicyRef struct {
	ID                ID           `json:"id"`
	Name              string       `json:"biz_nm"`
	Description       string       `json:"biz_cn,omitempty"`
	SupportContent    string       `json:"utztn_trpr_cn,omitempty"`
	CategoryLarge     string       `json:"biz_lclsf_nm,omitempty"`
	CategoryMedium    string       `json:"biz_mclsf_nm,omitempty"`
	CategorySmall     string       `json:"biz_sclsf_nm,omitempty"`
	Field             string       `json:"policy_field,omitempty"`
	TargetChildAge    string       `json:"trgt_child_age,omitempty"`
	UsageMethod       string       `json:"utztn_mthd_cn,omitempty"`
	OperatingHours    string       `json:"oper_hr_cn,omitempty"`
	Contact           string       `json:"aref_cn,omitempty"`
	InfoURL           string       `json:"deviw_site_addr,omitempty"`
	ApplyURL          string       `json:"aply_site_addr,omitempty"`
	ApplicationPeriod string       `json:"application_period,omitempty"`
	Status            PolicyStatus `json:"status,omitempty"`
}

// DisplayName returns the policy name, falling back to a generic label.
func (p PolicyRef) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.ID != "" {
		return "정책 " + p.ID.String()
	}
	return "제목 없음"
}

// Period returns the application period, "상시" when the backend omits it.
func (p PolicyRef) Period() string {
	if p.ApplicationPeriod == "" {
		return "상시"
	}
	return p.ApplicationPeriod
}
