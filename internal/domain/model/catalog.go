package model

// Catalog is the set of products a profile is usually picked from. Profiles
// may name products outside of it.
type Catalog struct {
	OperatingSystems []string `json:"operating_systems"`
	Databases        []string `json:"databases"`
	WebServers       []string `json:"web_servers"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		OperatingSystems: []string{
			"Windows 10", "Windows 11", "Windows Server 2019", "Windows Server 2022",
			"Ubuntu 20.04 LTS", "Ubuntu 22.04 LTS", "Red Hat Enterprise Linux 8",
			"Red Hat Enterprise Linux 9", "CentOS 7", "CentOS 8",
			"macOS Monterey", "macOS Ventura", "macOS Sonoma",
		},
		Databases: []string{
			"MySQL 5.7", "MySQL 8.0", "PostgreSQL 13", "PostgreSQL 14", "PostgreSQL 15",
			"Oracle Database 19c", "Oracle Database 21c", "Microsoft SQL Server 2019",
			"Microsoft SQL Server 2022", "MongoDB 5.0", "MongoDB 6.0", "Redis 6", "Redis 7",
		},
		WebServers: []string{
			"Apache HTTP Server 2.4", "Nginx 1.20", "Nginx 1.22", "Microsoft IIS 10",
			"Tomcat 9", "Tomcat 10", "Node.js 16", "Node.js 18", "Node.js 20",
		},
	}
}

// QuickAction is a canned prompt offered to start a conversation.
type QuickAction struct {
	Text   string `json:"text"`
	Domain Domain `json:"domain"`
}

func DefaultQuickActions() []QuickAction {
	return []QuickAction{
		{Text: "Check OS compatibility", Domain: DomainOS},
		{Text: "Database requirements", Domain: DomainDatabase},
		{Text: "Web server setup", Domain: DomainWebServer},
	}
}
