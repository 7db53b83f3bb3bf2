// Package providertest provides scriptable providers and factories for
// tests of code built on the registry.
//
//	f := providertest.NewFactory("fake", provider.TypeDatabase)
//	_ = reg.RegisterFactory(f)
//	_, _ = reg.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{})
//	f.Provider("db").FailStart(errors.New("boom"))
package providertest
