// Package registry — таблица типов шагов.
//
// Для каждого типа хранятся генераторы фрагментов по backend'ам
// и поведение при симуляции. Компилятор и исполнитель получают
// реестр явно; глобального экземпляра нет.
//
//	reg := registry.New()
//	reg.Register(&registry.Item{
//	    Type: "build",
//	    Generators: map[registry.Backend]registry.Generator{
//	        "shell": func(n *domain.Node) (any, bool) { return "make build", true },
//	    },
//	})
//
// Неизвестный тип (ErrTypeNotFound) и отсутствие генератора (ErrNoGenerator)
// не фатальны: вызывающий код пропускает такой узел.
package registry
