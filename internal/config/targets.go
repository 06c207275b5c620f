package config

// Target 描述一个被抓取的新闻源（公司新闻页）
type Target struct {
	Name string `mapstructure:"name" json:"name"`
	URL  string `mapstructure:"url" json:"url"`
}

// Subscription 订阅者及其关注的 Target 名称列表；companies 字段名沿用旧版 SUBSCRIPTIONS 格式
type Subscription struct {
	Email   string   `mapstructure:"email" json:"email"`
	Targets []string `mapstructure:"companies" json:"companies"`
}

const marketScreenerBase = "https://es.marketscreener.com/cotizacion/accion/"

// defaultTargets 随部署编译进来的默认新闻源，可被配置文件中的 targets 覆盖
func defaultTargets() []Target {
	pages := []struct{ name, path string }{
		{"HENSOLDT", "HENSOLDT-AG-112902521/noticia/"},
		{"DEXCOM", "DEXCOM-INC-9115/noticia/"},
		{"PAYPAL", "PAYPAL-HOLDINGS-INC-23377703/noticia/"},
		{"MICROSOFT", "MICROSOFT-CORPORATION-4835/noticia/"},
		{"ADOBE", "ADOBE-INC-4844/noticia/"},
		{"PEPSI", "PEPSICO-INC-39085159/noticia/"},
		{"NOVONORDISK", "NOVO-NORDISK-A-S-1412980/noticia/"},
		{"INDITEX", "INDITEX-16943135/"},
		{"NU", "NU-HOLDINGS-LTD-130481391/noticia/"},
		{"HOEGH", "HOEGH-AUTOLINERS-ASA-129888455/noticia/"},
		{"SOFTBANK", "SOFTBANK-CORP-54039112/noticia/"},
		{"MICRON", "MICRON-TECHNOLOGY-INC-13639/noticia/"},
		{"GLOBALSTAR", "GLOBALSTAR-INC-16313081/noticia/"},
		{"MICROSTRATEGY", "MICROSTRATEGY-INCORPORATE-10105/noticia/"},
		{"NVIDIA", "NVIDIA-CORPORATION-57355629/noticia/"},
		{"GERRESHEIMER", "GERRESHEIMER-AG-599546/noticia/"},
		{"PALOALTO", "PALO-ALTO-NETWORKS-INC-11067980/noticia/"},
		{"HELLOFRESH", "HELLOFRESH-SE-38533857/noticia/"},
		{"ELF BEAUTY", "ELF-BEAUTY-31370490/noticia/"},
		{"KERING", "KERING-4683/noticia/"},
		{"BAYER", "BAYER-AG-436063/noticia/"},
		{"PUMA", "PUMA-SE-436505/noticia/"},
		{"DELL", "DELL-TECHNOLOGIES-INC-50061235/noticia/"},
		{"UPS", "UNITED-PARCEL-SERVICE-INC-14758/noticia/"},
		{"TUI", "TUI-AG-470539/noticia/"},
		{"JPMORGAN", "JPMORGAN-CHASE-CO-37468997/noticia/"},
		{"DWAVEQUANTUM", "D-WAVE-QUANTUM-INC-142129231/noticia/"},
		{"FRESHPET", "FRESHPET-INC-18509105/noticia/"},
		{"UNITEDHEALTH", "UNITEDHEALTH-GROUP-INC-14750/noticia/"},
	}
	out := make([]Target, 0, len(pages))
	for _, p := range pages {
		out = append(out, Target{Name: p.name, URL: marketScreenerBase + p.path})
	}
	return out
}

// TargetIndex 按名称索引 Target，供周期内只读查找
type TargetIndex map[string]Target

// Index 构建名称索引；重名时后者覆盖前者
func Index(targets []Target) TargetIndex {
	idx := make(TargetIndex, len(targets))
	for _, t := range targets {
		idx[t.Name] = t
	}
	return idx
}

// Lookup 按名称查找 Target
func (idx TargetIndex) Lookup(name string) (Target, bool) {
	t, ok := idx[name]
	return t, ok
}
