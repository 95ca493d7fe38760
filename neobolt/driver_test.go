/*
 * Copyright (c) "Neo4j"
 * Neo4j Sweden AB [https://neo4j.com]
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neobolt

import (
	"context"
	"testing"

	"github.com/neo4j-drivers/neobolt/neobolt/config"
	"github.com/stretchr/testify/require"
)

func TestNewDriverSchemes(t *testing.T) {
	cases := []struct {
		uri       string
		encrypted bool
		routed    bool
	}{
		{"bolt://localhost:7687", false, false},
		{"bolt+s://localhost:7687", true, false},
		{"bolt+ssc://localhost:7687", true, false},
		{"neo4j://localhost:7687", false, true},
		{"neo4j+s://localhost:7687", true, true},
		{"neo4j+ssc://localhost:7687", true, true},
	}
	for _, c := range cases {
		t.Run(c.uri, func(t *testing.T) {
			d, err := NewDriver(c.uri, BasicAuth("user", "pass", ""))
			require.NoError(t, err)
			require.Equal(t, c.encrypted, d.IsEncrypted())
			impl := d.(*driver)
			_, direct := impl.router.(*directRouter)
			require.Equal(t, c.routed, !direct)
			require.NoError(t, d.Close(context.Background()))
		})
	}
}

func TestNewDriverUnsupportedScheme(t *testing.T) {
	_, err := NewDriver("http://localhost:7474", NoAuth())
	require.Error(t, err)
	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
}

func TestNewDriverDefaultPort(t *testing.T) {
	d, err := NewDriver("neo4j://somewhere", NoAuth())
	require.NoError(t, err)
	require.Equal(t, "somewhere:7687", d.Target().Host)
}

func TestNewDriverRoutingContextFromQuery(t *testing.T) {
	d, err := NewDriver("neo4j://host:7687?policy=eu&region=west", NoAuth())
	require.NoError(t, err)
	impl := d.(*driver)
	r := impl.router
	require.NotNil(t, r)
}

func TestNewDriverRejectsQueryOnBoltScheme(t *testing.T) {
	_, err := NewDriver("bolt://host:7687?policy=eu", NoAuth())
	require.Error(t, err)
	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
}

func TestNewDriverRejectsReservedRoutingContextKey(t *testing.T) {
	_, err := NewDriver("neo4j://host:7687?address=elsewhere", NoAuth())
	require.Error(t, err)
}

func TestNewDriverRejectsZeroPoolSize(t *testing.T) {
	_, err := NewDriver("neo4j://host", NoAuth(), func(c *config.Config) {
		c.MaxConnectionPoolSize = 0
	})
	require.Error(t, err)
}

func TestSessionOnClosedDriverErrors(t *testing.T) {
	d, err := NewDriver("neo4j://host", NoAuth())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx)) // Idempotent

	session := d.NewSession(ctx, config.SessionConfig{})
	_, err = session.Run(ctx, "RETURN 1", nil)
	require.True(t, IsUsageError(err))
}

func TestNewDriverResolverExpandsAddresses(t *testing.T) {
	resolved := false
	d, err := NewDriver("neo4j://host:7687", NoAuth(), func(c *config.Config) {
		c.AddressResolver = func(address config.ServerAddress) []config.ServerAddress {
			resolved = true
			require.Equal(t, "host", address.Hostname())
			require.Equal(t, "7687", address.Port())
			return []config.ServerAddress{
				NewServerAddress("a", "7687"),
				NewServerAddress("b", "7687"),
			}
		}
	})
	require.NoError(t, err)
	defer func() { _ = d.Close(context.Background()) }()
	// Exercise the resolver through the driver's wiring
	addresses := resolverFn(d.(*driver).config.AddressResolver, &d.(*driver).target)()
	require.True(t, resolved)
	require.Equal(t, []string{"a:7687", "b:7687"}, addresses)
}
