package access

// ConfigBuilder assembles a Config fluently; used by tests and seed tooling.
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: &Config{Version: 1}}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) User(u *User) *ConfigBuilder {
	b.cfg.Users = append(b.cfg.Users, u)
	return b
}

func (b *ConfigBuilder) Subject(s *Subject) *ConfigBuilder {
	b.cfg.Subjects = append(b.cfg.Subjects, s)
	return b
}

func (b *ConfigBuilder) Topic(t *Topic) *ConfigBuilder {
	b.cfg.Topics = append(b.cfg.Topics, t)
	return b
}

func (b *ConfigBuilder) Video(v *Video) *ConfigBuilder {
	b.cfg.Videos = append(b.cfg.Videos, v)
	return b
}

func (b *ConfigBuilder) Material(m *Material) *ConfigBuilder {
	b.cfg.Materials = append(b.cfg.Materials, m)
	return b
}

func (b *ConfigBuilder) Assessment(a *Assessment) *ConfigBuilder {
	b.cfg.Assessments = append(b.cfg.Assessments, a)
	return b
}

func (b *ConfigBuilder) LibraryGrant(g *LibraryGrant) *ConfigBuilder {
	b.cfg.LibraryGrants = append(b.cfg.LibraryGrants, &LibraryGrantConfig{LibraryGrant: *g})
	return b
}

func (b *ConfigBuilder) SchoolGrant(g *SchoolGrant) *ConfigBuilder {
	b.cfg.SchoolGrants = append(b.cfg.SchoolGrants, &SchoolGrantConfig{SchoolGrant: *g})
	return b
}

func (b *ConfigBuilder) TeacherGrant(g *TeacherGrant) *ConfigBuilder {
	b.cfg.TeacherGrants = append(b.cfg.TeacherGrants, g)
	return b
}

func (b *ConfigBuilder) TeacherExclusion(x *TeacherExclusion) *ConfigBuilder {
	b.cfg.TeacherExclusions = append(b.cfg.TeacherExclusions, x)
	return b
}

func (b *ConfigBuilder) SubjectExclusion(x *SchoolSubjectExclusion) *ConfigBuilder {
	b.cfg.SubjectExclusions = append(b.cfg.SubjectExclusions, x)
	return b
}

func (b *ConfigBuilder) Engine(ec EngineConfig) *ConfigBuilder {
	b.cfg.Engine = ec
	return b
}

func (b *ConfigBuilder) Build() *Config { return b.cfg }
